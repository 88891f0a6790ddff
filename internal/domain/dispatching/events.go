package dispatching

import (
	"time"

	"github.com/google/uuid"

	"github.com/spirals/formula-dispatch/internal/domain/events"
	"github.com/spirals/formula-dispatch/internal/domain/reports"
)

// Event types relevant to formula dispatching:
const (
	EventTypeReportReceived events.EventType = "ReportReceived"
	EventTypePoisonReport   events.EventType = "PoisonReport"
	EventTypeProbeSent      events.EventType = "ProbeSent"
	EventTypeFormulaBlocked events.EventType = "FormulaBlocked"
	EventTypeFormulaEvicted events.EventType = "FormulaEvicted"
)

// ReportReceivedEvent carries a report that arrived for dispatching.
type ReportReceivedEvent struct {
	occurredAt time.Time
	Report     reports.Report
}

func NewReportReceivedEvent(r reports.Report) ReportReceivedEvent {
	return ReportReceivedEvent{
		occurredAt: time.Now(),
		Report:     r,
	}
}

func (e ReportReceivedEvent) EventType() events.EventType { return EventTypeReportReceived }
func (e ReportReceivedEvent) OccurredAt() time.Time       { return e.occurredAt }

// PoisonReportEvent signals that a formula failed while processing a report.
// ReportID is the reflected correlation id the blocking detector tests for
// consecutiveness.
type PoisonReportEvent struct {
	occurredAt time.Time
	FormulaID  uuid.UUID
	RouteKey   reports.RouteKey
	ReportID   int
	Reason     string
}

func NewPoisonReportEvent(formulaID uuid.UUID, key reports.RouteKey, reportID int, reason string) PoisonReportEvent {
	return PoisonReportEvent{
		occurredAt: time.Now(),
		FormulaID:  formulaID,
		RouteKey:   key,
		ReportID:   reportID,
		Reason:     reason,
	}
}

func (e PoisonReportEvent) EventType() events.EventType { return EventTypePoisonReport }
func (e PoisonReportEvent) OccurredAt() time.Time       { return e.occurredAt }

// ProbeSentEvent records that a diagnostic probe tagged with ProbeID was sent
// to a formula.
type ProbeSentEvent struct {
	occurredAt time.Time
	FormulaID  uuid.UUID
	RouteKey   reports.RouteKey
	ProbeID    int
}

func NewProbeSentEvent(formulaID uuid.UUID, key reports.RouteKey, probeID int) ProbeSentEvent {
	return ProbeSentEvent{
		occurredAt: time.Now(),
		FormulaID:  formulaID,
		RouteKey:   key,
		ProbeID:    probeID,
	}
}

func (e ProbeSentEvent) EventType() events.EventType { return EventTypeProbeSent }
func (e ProbeSentEvent) OccurredAt() time.Time       { return e.occurredAt }

// FormulaBlockedEvent means the blocking detector confirmed a formula is stuck.
type FormulaBlockedEvent struct {
	occurredAt   time.Time
	FormulaID    uuid.UUID
	RouteKey     reports.RouteKey
	LastReportID int
	Status       FormulaStatus
}

func NewFormulaBlockedEvent(formulaID uuid.UUID, key reports.RouteKey, lastReportID int) FormulaBlockedEvent {
	return FormulaBlockedEvent{
		occurredAt:   time.Now(),
		FormulaID:    formulaID,
		RouteKey:     key,
		LastReportID: lastReportID,
		Status:       FormulaStatusBlocked,
	}
}

func (e FormulaBlockedEvent) EventType() events.EventType { return EventTypeFormulaBlocked }
func (e FormulaBlockedEvent) OccurredAt() time.Time       { return e.occurredAt }

// FormulaEvictedEvent means a blocked formula was removed from the registry.
// ReplacementID identifies the fresh formula created for the route key, or is
// the zero UUID if no replacement could be built.
type FormulaEvictedEvent struct {
	occurredAt    time.Time
	FormulaID     uuid.UUID
	RouteKey      reports.RouteKey
	ReplacementID uuid.UUID
	Status        FormulaStatus
}

func NewFormulaEvictedEvent(formulaID uuid.UUID, key reports.RouteKey, replacementID uuid.UUID) FormulaEvictedEvent {
	return FormulaEvictedEvent{
		occurredAt:    time.Now(),
		FormulaID:     formulaID,
		RouteKey:      key,
		ReplacementID: replacementID,
		Status:        FormulaStatusEvicted,
	}
}

func (e FormulaEvictedEvent) EventType() events.EventType { return EventTypeFormulaEvicted }
func (e FormulaEvictedEvent) OccurredAt() time.Time       { return e.occurredAt }
