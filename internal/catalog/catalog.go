package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pcstore-service/internal/models"
	"pcstore-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source is the persistent store of component types and components
type Source interface {
	ListComponentTypes(ctx context.Context) ([]models.ComponentType, error)
	ListComponents(ctx context.Context) ([]models.Component, error)
}

// Cache keeps a serialized snapshot between requests
type Cache interface {
	GetCatalog(ctx context.Context, dest *Data) (bool, error)
	SetCatalog(ctx context.Context, data *Data, ttl time.Duration) error
	DeleteCatalog(ctx context.Context) error
}

// Data is the cacheable form of a snapshot
type Data struct {
	Types      []models.ComponentType `json:"types"`
	Components []models.Component     `json:"components"`
}

// Catalog serves read-mostly snapshots of the component catalog
type Catalog struct {
	source Source
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a catalog. cache may be nil.
func New(source Source, cache Cache, ttl time.Duration) *Catalog {
	return &Catalog{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Snapshot returns the cached snapshot when available, loading it otherwise.
// Concurrent misses share one load.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	if c.cache != nil {
		var data Data
		found, err := c.cache.GetCatalog(ctx, &data)
		if err != nil {
			c.logger.Warn("Catalog cache read failed", zap.Error(err))
		} else if found {
			util.CatalogCacheHits.Inc()
			return NewSnapshot(data.Types, data.Components), nil
		}
	}
	util.CatalogCacheMisses.Inc()

	v, err, _ := c.group.Do("snapshot", func() (interface{}, error) {
		data, err := c.read(ctx)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.SetCatalog(ctx, data, c.ttl); err != nil {
				c.logger.Warn("Catalog cache write failed", zap.Error(err))
			}
		}
		return NewSnapshot(data.Types, data.Components), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Load reads the catalog from the source. It neither reads nor writes the
// cache, so a checkout racing a stock change cannot cache stale stock.
func (c *Catalog) Load(ctx context.Context) (*Snapshot, error) {
	data, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(data.Types, data.Components), nil
}

func (c *Catalog) read(ctx context.Context) (*Data, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.Load")
	defer span.End()

	types, err := c.source.ListComponentTypes(ctx)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to list component types: %w", err))
	}
	components, err := c.source.ListComponents(ctx)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to list components: %w", err))
	}
	return &Data{Types: types, Components: components}, nil
}

// Invalidate drops the cached snapshot, e.g. after stock changed
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.DeleteCatalog(ctx); err != nil {
		c.logger.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
}

// Snapshot is an immutable view of the catalog at one point in time
type Snapshot struct {
	types      []models.ComponentType
	typeByCode map[string]models.ComponentType
	components map[int64]models.Component
}

// NewSnapshot indexes types and components. Types are ordered by SortOrder
// then Code so everything derived from a snapshot is deterministic.
func NewSnapshot(types []models.ComponentType, components []models.Component) *Snapshot {
	sorted := make([]models.ComponentType, len(types))
	copy(sorted, types)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].Code < sorted[j].Code
	})

	s := &Snapshot{
		types:      sorted,
		typeByCode: make(map[string]models.ComponentType, len(types)),
		components: make(map[int64]models.Component, len(components)),
	}
	for _, t := range sorted {
		s.typeByCode[t.Code] = t
	}
	for _, c := range components {
		s.components[c.ID] = c
	}
	return s
}

// Types returns all component types in display order
func (s *Snapshot) Types() []models.ComponentType {
	return s.types
}

// Type looks up a component type by code
func (s *Snapshot) Type(code string) (models.ComponentType, bool) {
	t, ok := s.typeByCode[code]
	return t, ok
}

// Component looks up a component by id, active or not
func (s *Snapshot) Component(id int64) (models.Component, bool) {
	c, ok := s.components[id]
	return c, ok
}

// Active returns the components available for new configurations, grouped
// by type order and then by id.
func (s *Snapshot) Active() []models.Component {
	order := make(map[string]int, len(s.types))
	for i, t := range s.types {
		order[t.Code] = i
	}

	out := make([]models.Component, 0, len(s.components))
	for _, c := range s.components {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if order[out[i].TypeCode] != order[out[j].TypeCode] {
			return order[out[i].TypeCode] < order[out[j].TypeCode]
		}
		return out[i].ID < out[j].ID
	})
	return out
}
