package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spirals/formula-dispatch/internal/domain/dispatching"
	"github.com/spirals/formula-dispatch/internal/domain/events"
	"github.com/spirals/formula-dispatch/internal/domain/reports"
)

type mockEventBus struct {
	published []events.EventEnvelope
	keys      []string
	err       error
}

func (m *mockEventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	m.published = append(m.published, event)
	m.keys = append(m.keys, params.Key)
	return m.err
}

func (m *mockEventBus) Subscribe(context.Context, []events.EventType, events.HandlerFunc) error {
	return nil
}

func (m *mockEventBus) Close() error { return nil }

func TestDomainEventPublisher_PublishDomainEvent(t *testing.T) {
	bus := new(mockEventBus)
	pub := NewDomainEventPublisher(bus)

	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	evt := dispatching.NewPoisonReportEvent(uuid.New(), key, 17, "boom")

	err := pub.PublishDomainEvent(context.Background(), evt, events.WithKey(key.String()))
	require.NoError(t, err)

	require.Len(t, bus.published, 1)
	assert.Equal(t, dispatching.EventTypePoisonReport, bus.published[0].Type)
	assert.Equal(t, evt, bus.published[0].Payload)
	assert.WithinDuration(t, time.Now(), bus.published[0].Timestamp, time.Minute)
	assert.Equal(t, "rapl/db", bus.keys[0])
}
