package lifecycle

import (
	"pcstore-service/internal/apperr"
	"pcstore-service/internal/models"
)

// TicketTransition is one row of the ticket table
type TicketTransition struct {
	From  models.TicketStatus
	Event models.TicketEvent
	To    models.TicketStatus
}

type ticketKey struct {
	from  models.TicketStatus
	event models.TicketEvent
}

var ticketNonTerminal = []models.TicketStatus{
	models.TicketStatusOpened,
	models.TicketStatusDiagnosing,
	models.TicketStatusWaitingCustomer,
	models.TicketStatusInRepair,
	models.TicketStatusReady,
}

// TicketTransitions is the complete ticket state machine. CANCEL rows are
// appended for every non-terminal status.
var TicketTransitions = append([]TicketTransition{
	{models.TicketStatusOpened, models.TicketEventStartDiagnosis, models.TicketStatusDiagnosing},
	{models.TicketStatusDiagnosing, models.TicketEventAwaitCustomer, models.TicketStatusWaitingCustomer},
	{models.TicketStatusInRepair, models.TicketEventAwaitCustomer, models.TicketStatusWaitingCustomer},
	{models.TicketStatusWaitingCustomer, models.TicketEventResumeDiagnosis, models.TicketStatusDiagnosing},
	{models.TicketStatusWaitingCustomer, models.TicketEventStartRepair, models.TicketStatusInRepair},
	{models.TicketStatusDiagnosing, models.TicketEventStartRepair, models.TicketStatusInRepair},
	{models.TicketStatusInRepair, models.TicketEventFinishRepair, models.TicketStatusReady},
	{models.TicketStatusReady, models.TicketEventClose, models.TicketStatusClosed},
}, cancelRows()...)

func cancelRows() []TicketTransition {
	rows := make([]TicketTransition, 0, len(ticketNonTerminal))
	for _, s := range ticketNonTerminal {
		rows = append(rows, TicketTransition{s, models.TicketEventCancel, models.TicketStatusCancelled})
	}
	return rows
}

var ticketIndex = indexTicketTransitions(TicketTransitions)

func indexTicketTransitions(rows []TicketTransition) map[ticketKey]models.TicketStatus {
	idx := make(map[ticketKey]models.TicketStatus, len(rows))
	for _, r := range rows {
		idx[ticketKey{r.From, r.Event}] = r.To
	}
	return idx
}

// NextTicket returns the status reached by event from status
func NextTicket(from models.TicketStatus, event models.TicketEvent) (models.TicketStatus, error) {
	to, ok := ticketIndex[ticketKey{from, event}]
	if !ok {
		return "", &apperr.InvalidTransitionError{
			Entity: "ticket",
			From:   string(from),
			Event:  string(event),
		}
	}
	return to, nil
}

// TicketTerminal reports whether status is CLOSED or CANCELLED
func TicketTerminal(status models.TicketStatus) bool {
	return status == models.TicketStatusClosed || status == models.TicketStatusCancelled
}

// AcceptsFindings reports whether diagnosis and solution may be recorded on
// a ticket reaching status: DIAGNOSING or later, excluding cancellation.
func AcceptsFindings(status models.TicketStatus) bool {
	return status != models.TicketStatusOpened && status != models.TicketStatusCancelled
}

// ValidTicketEvent reports whether event is known to the ticket table
func ValidTicketEvent(event models.TicketEvent) bool {
	for _, r := range TicketTransitions {
		if r.Event == event {
			return true
		}
	}
	return false
}
