package service

import (
	"context"
	"errors"

	"pcstore-service/internal/compat"
	"pcstore-service/internal/models"
	"pcstore-service/internal/util"

	"go.uber.org/zap"
)

// ConfigurationService validates and prices PC configurations
type ConfigurationService struct {
	catalog  CatalogReader
	resolver *compat.Resolver
	logger   *zap.Logger
}

// NewConfigurationService creates a new configuration service
func NewConfigurationService(catalog CatalogReader, resolver *compat.Resolver) *ConfigurationService {
	return &ConfigurationService{
		catalog:  catalog,
		resolver: resolver,
		logger:   util.GetLogger(),
	}
}

// CatalogView lists the component types and the active components
type CatalogView struct {
	Types      []models.ComponentType `json:"types"`
	Components []models.Component     `json:"components"`
}

// Validate checks sel against the current catalog and prices it. Problems
// are returned as *compat.ValidationErrors.
func (s *ConfigurationService) Validate(ctx context.Context, sel compat.Selection) (*compat.PricedConfiguration, error) {
	ctx, span := util.StartSpan(ctx, "ConfigurationService.Validate")
	defer span.End()

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	priced, err := s.resolver.Validate(sel, snap)
	if err != nil {
		util.ConfigurationsValidatedTotal.WithLabelValues("invalid").Inc()
		var verrs *compat.ValidationErrors
		if errors.As(err, &verrs) {
			s.logger.Debug("Configuration rejected", zap.Int("problems", len(verrs.Errors)))
		}
		return nil, err
	}

	if priced.HasWarnings() {
		util.ConfigurationsValidatedTotal.WithLabelValues("warning").Inc()
	} else {
		util.ConfigurationsValidatedTotal.WithLabelValues("valid").Inc()
	}
	return priced, nil
}

// ListCatalog returns the component types and the components currently on
// sale.
func (s *ConfigurationService) ListCatalog(ctx context.Context) (*CatalogView, error) {
	ctx, span := util.StartSpan(ctx, "ConfigurationService.ListCatalog")
	defer span.End()

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	return &CatalogView{Types: snap.Types(), Components: snap.Active()}, nil
}
