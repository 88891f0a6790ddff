package events

import "time"

// DomainEvent is implemented by all domain-level events flowing through the
// dispatcher. Concrete event types carry their own payload fields; this
// interface is what publishers and the event bus agree on.
type DomainEvent interface {
	// EventType identifies the category of this event for routing and handling.
	EventType() EventType

	// OccurredAt records when the event was created.
	OccurredAt() time.Time
}

// EventMetadata carries transport-level position information for a consumed
// event, such as the partition and offset it was read from.
type EventMetadata struct {
	Partition int32
	Offset    int64
}

// EventEnvelope encapsulates all event data flowing through the system,
// providing a standardized format for event processing and distribution.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically containing a business
	// identifier like a formula ID that events can be grouped or partitioned by.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created, enabling temporal tracking
	// and debugging of event flows.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on the
	// EventType.
	Payload any

	// Metadata carries transport position information for consumed events.
	Metadata EventMetadata
}
