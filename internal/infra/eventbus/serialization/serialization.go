// Package serialization converts domain events to and from their wire form.
// Every event travels inside a universal envelope that names its type, so
// consumers can pick the right decoder before touching the payload.
package serialization

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spirals/formula-dispatch/internal/domain/events"
)

// universalEnvelope wraps every serialized payload with its event type.
type universalEnvelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// SerializeFunc converts a domain payload into bytes.
type SerializeFunc func(payload any) ([]byte, error)

// DeserializeFunc converts bytes back into a domain payload.
type DeserializeFunc func(data []byte) (any, error)

var (
	mu            sync.RWMutex
	serializers   = make(map[events.EventType]SerializeFunc)
	deserializers = make(map[events.EventType]DeserializeFunc)
)

// RegisterType installs the codec pair for an event type. Registration happens
// at package init time; duplicate registration panics to surface wiring bugs
// early.
func RegisterType(eventType events.EventType, ser SerializeFunc, deser DeserializeFunc) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := serializers[eventType]; exists {
		panic(fmt.Sprintf("serialization: duplicate registration for event type %q", eventType))
	}
	serializers[eventType] = ser
	deserializers[eventType] = deser
}

// SerializeEventEnvelope serializes a payload and wraps it in the universal
// envelope for the given event type.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	mu.RLock()
	ser, ok := serializers[eventType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no serializer registered for event type %q", eventType)
	}

	payloadBytes, err := ser(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload for %q: %w", eventType, err)
	}

	return json.Marshal(universalEnvelope{
		EventType: string(eventType),
		Payload:   payloadBytes,
	})
}

// UnmarshalUniversalEnvelope splits a wire message into its event type and raw
// payload bytes.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var env universalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal universal envelope: %w", err)
	}
	if env.EventType == "" {
		return "", nil, fmt.Errorf("universal envelope missing event type")
	}
	return events.EventType(env.EventType), env.Payload, nil
}

// DeserializePayload decodes raw payload bytes into the domain object for the
// given event type.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	mu.RLock()
	deser, ok := deserializers[eventType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no deserializer registered for event type %q", eventType)
	}

	payload, err := deser(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize payload for %q: %w", eventType, err)
	}
	return payload, nil
}
