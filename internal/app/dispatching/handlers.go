package dispatching

import (
	"context"
	"fmt"

	"github.com/spirals/formula-dispatch/internal/domain/dispatching"
	"github.com/spirals/formula-dispatch/internal/domain/events"
)

var _ events.EventHandler = (*EventHandler)(nil)

// EventHandler adapts the dispatcher to the event bus: it consumes report
// arrivals and poison notifications and feeds them to the dispatcher.
type EventHandler struct {
	dispatcher *Dispatcher
}

// NewEventHandler creates the bus-facing handler for a dispatcher.
func NewEventHandler(dispatcher *Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: dispatcher}
}

// SupportedEvents returns the event types this handler consumes.
func (h *EventHandler) SupportedEvents() []events.EventType {
	return []events.EventType{
		dispatching.EventTypeReportReceived,
		dispatching.EventTypePoisonReport,
	}
}

// HandleEvent dispatches an envelope to the matching dispatcher operation and
// acknowledges the outcome.
func (h *EventHandler) HandleEvent(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	var err error
	switch payload := evt.Payload.(type) {
	case dispatching.ReportReceivedEvent:
		err = h.dispatcher.Route(ctx, payload.Report)

	case dispatching.PoisonReportEvent:
		err = h.dispatcher.HandlePoisonReport(ctx, payload)

	default:
		err = fmt.Errorf("unexpected payload type %T for event %s", evt.Payload, evt.Type)
	}

	ack(err)
	return err
}

// Register subscribes the handler on the given bus.
func (h *EventHandler) Register(ctx context.Context, bus events.EventBus) error {
	return bus.Subscribe(ctx, h.SupportedEvents(), h.HandleEvent)
}
