package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/lifecycle"
	"pcstore-service/internal/models"
	"pcstore-service/internal/protocol"
	"pcstore-service/internal/store"
	"pcstore-service/internal/util"

	"go.uber.org/zap"
)

// findingsEvent names a plain diagnosis/solution update in transition errors
const findingsEvent = "RECORD_FINDINGS"

// TicketService handles the service ticket lifecycle
type TicketService struct {
	store          TicketStore
	protocols      ProtocolGenerator
	eventPublisher EventPublisher
	clock          util.Clock
	logger         *zap.Logger
}

// NewTicketService creates a new ticket service
func NewTicketService(store TicketStore, protocols ProtocolGenerator, eventPublisher EventPublisher, clock util.Clock) *TicketService {
	return &TicketService{
		store:          store,
		protocols:      protocols,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         util.GetLogger(),
	}
}

// CreateTicketRequest opens a repair ticket
type CreateTicketRequest struct {
	CustomerID int64                 `json:"customer_id" validate:"required,gt=0"`
	CompanyID  int64                 `json:"company_id" validate:"required,gt=0"`
	ServiceID  *int64                `json:"service_id,omitempty" validate:"omitempty,gt=0"`
	Symptoms   string                `json:"symptoms" validate:"required,max=4000"`
	Priority   models.TicketPriority `json:"priority,omitempty"`
}

// TransitionTicketRequest applies an event and/or records findings. A nil
// field is left unchanged.
type TransitionTicketRequest struct {
	Event     models.TicketEvent `json:"event,omitempty"`
	Diagnosis *string            `json:"diagnosis,omitempty" validate:"omitempty,max=4000"`
	Solution  *string            `json:"solution,omitempty" validate:"omitempty,max=4000"`
}

// CreateTicket opens a ticket in OPENED with a fresh protocol
func (s *TicketService) CreateTicket(ctx context.Context, req *CreateTicketRequest) (*models.ServiceTicket, error) {
	ctx, span := util.StartSpan(ctx, "TicketService.CreateTicket")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" {
		return nil, apperr.Validation("symptoms", "must not be blank")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.TicketPriorityNormal
	}
	if !priority.Valid() {
		return nil, apperr.Validation("priority", "unknown priority %q", priority)
	}

	ticket := &models.ServiceTicket{
		CustomerID: req.CustomerID,
		CompanyID:  req.CompanyID,
		ServiceID:  req.ServiceID,
		Status:     models.TicketStatusOpened,
		Priority:   priority,
		Symptoms:   symptoms,
	}

	if err := s.insertTicket(ctx, ticket); err != nil {
		return nil, util.SpanError(span, err)
	}

	util.TicketsCreatedTotal.Inc()
	s.logger.Info("Ticket opened",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("protocol", ticket.Protocol),
		zap.String("priority", string(ticket.Priority)))

	event := &models.TicketCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeTicketCreated, s.clock.Now()),
		TicketID:   ticket.ID,
		Protocol:   ticket.Protocol,
		CustomerID: ticket.CustomerID,
		Priority:   ticket.Priority,
	}
	if err := s.eventPublisher.PublishTicketCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish TicketCreated event", zap.Error(err))
	}
	return ticket, nil
}

func (s *TicketService) insertTicket(ctx context.Context, ticket *models.ServiceTicket) error {
	for attempt := 1; attempt <= maxInsertAttempts; attempt++ {
		code, err := s.protocols.Generate(ctx, protocol.KindTicket)
		if err != nil {
			return err
		}
		ticket.Protocol = code

		err = s.store.CreateTicket(ctx, ticket)
		if errors.Is(err, store.ErrDuplicateProtocol) {
			util.ProtocolCollisionsTotal.WithLabelValues(string(protocol.KindTicket)).Inc()
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create ticket: %w", err)
		}
		return nil
	}
	return apperr.ErrProtocolGenerationFailed
}

// GetTicket retrieves a ticket by ID
func (s *TicketService) GetTicket(ctx context.Context, ticketID int64) (*models.ServiceTicket, error) {
	ctx, span := util.StartSpan(ctx, "TicketService.GetTicket")
	defer span.End()

	return s.store.GetTicketByID(ctx, ticketID)
}

// TransitionTicket applies req.Event, if any, and records the supplied
// findings. Findings are accepted only on a ticket that is, or is being
// moved, past OPENED and that is not cancelled; a plain findings update on a
// closed ticket is rejected because terminal tickets are immutable.
func (s *TicketService) TransitionTicket(ctx context.Context, ticketID int64, req *TransitionTicketRequest) (*models.ServiceTicket, error) {
	ctx, span := util.StartSpan(ctx, "TicketService.TransitionTicket")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	hasFindings := req.Diagnosis != nil || req.Solution != nil
	if req.Event == "" && !hasFindings {
		return nil, apperr.Validation("event", "event or findings required")
	}

	label := string(req.Event)
	switch {
	case label == "":
		label = findingsEvent
	case !lifecycle.ValidTicketEvent(req.Event):
		label = unknownEventLabel
	}

	var from models.TicketStatus
	ticket, err := s.store.MutateTicket(ctx, ticketID, func(t *models.ServiceTicket) error {
		from = t.Status
		to := t.Status
		if req.Event != "" {
			next, err := lifecycle.NextTicket(t.Status, req.Event)
			if err != nil {
				return err
			}
			to = next
		}

		if hasFindings {
			plainOnTerminal := req.Event == "" && lifecycle.TicketTerminal(from)
			if !lifecycle.AcceptsFindings(to) || plainOnTerminal {
				return &apperr.InvalidTransitionError{Entity: "ticket", From: string(from), Event: label}
			}
			if req.Diagnosis != nil {
				t.Diagnosis = strings.TrimSpace(*req.Diagnosis)
			}
			if req.Solution != nil {
				t.Solution = strings.TrimSpace(*req.Solution)
			}
		}

		if to != from && lifecycle.TicketTerminal(to) {
			now := s.clock.Now()
			t.ClosedAt = &now
		}
		t.Status = to
		return nil
	})

	util.TicketTransitionsTotal.WithLabelValues(label, resultLabel(err)).Inc()
	if err != nil {
		s.logger.Info("Ticket transition rejected",
			zap.Int64("ticket_id", ticketID),
			zap.String("event", label),
			zap.Error(err))
		return nil, util.SpanError(span, err)
	}

	if req.Event != "" {
		s.logger.Info("Ticket transitioned",
			zap.Int64("ticket_id", ticket.ID),
			zap.String("from", string(from)),
			zap.String("to", string(ticket.Status)))

		event := &models.TicketStatusChangedEvent{
			BaseEvent: newBaseEvent(models.EventTypeTicketStatusChanged, s.clock.Now()),
			TicketID:  ticket.ID,
			Protocol:  ticket.Protocol,
			From:      from,
			To:        ticket.Status,
			Event:     req.Event,
		}
		if err := s.eventPublisher.PublishTicketStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish TicketStatusChanged event", zap.Error(err))
		}
	}
	return ticket, nil
}

// SetTicketPriority changes the priority of a ticket. Priority never
// constrains transitions and may change in any status.
func (s *TicketService) SetTicketPriority(ctx context.Context, ticketID int64, priority models.TicketPriority) (*models.ServiceTicket, error) {
	ctx, span := util.StartSpan(ctx, "TicketService.SetTicketPriority")
	defer span.End()

	if !priority.Valid() {
		return nil, apperr.Validation("priority", "unknown priority %q", priority)
	}

	ticket, err := s.store.MutateTicket(ctx, ticketID, func(t *models.ServiceTicket) error {
		t.Priority = priority
		return nil
	})
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	s.logger.Info("Ticket priority changed",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("priority", string(priority)))
	return ticket, nil
}
