package dispatching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/spirals/formula-dispatch/internal/domain/dispatching"
	"github.com/spirals/formula-dispatch/internal/domain/events"
	"github.com/spirals/formula-dispatch/internal/domain/reports"
	"github.com/spirals/formula-dispatch/pkg/common/logger"
)

type mockFormula struct {
	id          uuid.UUID
	processFunc func(context.Context, reports.Report) error
}

func (m *mockFormula) ID() uuid.UUID { return m.id }

func (m *mockFormula) Process(ctx context.Context, r reports.Report) error {
	if m.processFunc != nil {
		return m.processFunc(ctx, r)
	}
	return nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []events.DomainEvent
	keys      []string
	err       error
}

func (m *mockPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	m.keys = append(m.keys, params.Key)
	return m.err
}

func (m *mockPublisher) eventsOfType(et events.EventType) []events.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.DomainEvent
	for _, e := range m.published {
		if e.EventType() == et {
			out = append(out, e)
		}
	}
	return out
}

type mockMetrics struct{}

func (mockMetrics) IncReportsRouted(context.Context)   {}
func (mockMetrics) IncPoisonReports(context.Context)   {}
func (mockMetrics) IncFormulasBlocked(context.Context) {}
func (mockMetrics) IncFormulasEvicted(context.Context) {}
func (mockMetrics) IncProbesSent(context.Context)      {}

func newTestDispatcher(t *testing.T, factory dispatching.FormulaFactory, pub *mockPublisher) *Dispatcher {
	t.Helper()
	d := NewDispatcher(
		factory,
		pub,
		mockMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		logger.Noop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)
	t.Cleanup(d.Stop)
	return d
}

func staticFactory(formulas map[reports.RouteKey]*mockFormula) dispatching.FormulaFactory {
	return func(key reports.RouteKey) (dispatching.Formula, error) {
		if f, ok := formulas[key]; ok {
			return f, nil
		}
		return &mockFormula{id: uuid.New()}, nil
	}
}

func TestDispatcher_RouteDeliversToFormula(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	processed := make(chan reports.Report, 1)
	formula := &mockFormula{
		id: uuid.New(),
		processFunc: func(_ context.Context, r reports.Report) error {
			processed <- r
			return nil
		},
	}

	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(map[reports.RouteKey]*mockFormula{key: formula}), pub)

	report := reports.Report{Sensor: "rapl", Target: "db", Metadata: map[string]string{"socket": "0"}}
	require.NoError(t, d.Route(context.Background(), report))

	select {
	case got := <-processed:
		assert.Equal(t, 0, got.DispatcherID)
		assert.Equal(t, report.Metadata, got.Metadata)
		assert.Equal(t, report.Sensor, got.Sensor)
		assert.Equal(t, report.Target, got.Target)
	case <-time.After(time.Second):
		t.Fatal("report was not processed")
	}
}

func TestDispatcher_RouteStampsConsecutiveIDs(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	processed := make(chan int, 3)
	formula := &mockFormula{
		id: uuid.New(),
		processFunc: func(_ context.Context, r reports.Report) error {
			processed <- r.DispatcherID
			return nil
		},
	}

	d := newTestDispatcher(t, staticFactory(map[reports.RouteKey]*mockFormula{key: formula}), new(mockPublisher))

	for i := 0; i < 3; i++ {
		// Incoming ids are ignored; the dispatcher assigns its own.
		require.NoError(t, d.Route(context.Background(), reports.Report{DispatcherID: 99, Sensor: "rapl", Target: "db"}))
	}

	for want := 0; want < 3; want++ {
		select {
		case got := <-processed:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("report was not processed")
		}
	}
}

func TestDispatcher_ProcessFailurePublishesPoison(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	formulaID := uuid.New()
	formula := &mockFormula{
		id: formulaID,
		processFunc: func(context.Context, reports.Report) error {
			return errors.New("cannot decode payload")
		},
	}

	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(map[reports.RouteKey]*mockFormula{key: formula}), pub)

	require.NoError(t, d.Route(context.Background(), reports.Report{Sensor: "rapl", Target: "db"}))

	assert.Eventually(t, func() bool {
		return len(pub.eventsOfType(dispatching.EventTypePoisonReport)) == 1
	}, time.Second, 10*time.Millisecond)

	evt := pub.eventsOfType(dispatching.EventTypePoisonReport)[0].(dispatching.PoisonReportEvent)
	assert.Equal(t, formulaID, evt.FormulaID)
	assert.Equal(t, 0, evt.ReportID, "reflected id is the one the dispatcher stamped")
	assert.Equal(t, key, evt.RouteKey)
}

func TestDispatcher_HandlePoisonReport_OutOfRange(t *testing.T) {
	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(nil), pub)

	tests := []struct {
		name     string
		reportID int
	}{
		{name: "negative", reportID: -1},
		{name: "above_max", reportID: dispatching.MaxMessageID + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := dispatching.NewPoisonReportEvent(uuid.New(), reports.RouteKey{Sensor: "s", Target: "t"}, tt.reportID, "")
			err := d.HandlePoisonReport(context.Background(), evt)
			assert.ErrorIs(t, err, ErrReportIDOutOfRange)
		})
	}
}

func TestDispatcher_HandlePoisonReport_UnknownFormula(t *testing.T) {
	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(nil), pub)

	evt := dispatching.NewPoisonReportEvent(uuid.New(), reports.RouteKey{Sensor: "s", Target: "t"}, 1, "")
	err := d.HandlePoisonReport(context.Background(), evt)
	assert.ErrorIs(t, err, ErrFormulaNotFound)
}

func TestDispatcher_HandlePoisonReport_StaleFormulaIgnored(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(nil), pub)

	require.NoError(t, d.Route(context.Background(), reports.Report{Sensor: "rapl", Target: "db"}))

	// A poison notification from a formula id that is not the registered one
	// must not advance the detector.
	evt := dispatching.NewPoisonReportEvent(uuid.New(), key, 5, "")
	require.NoError(t, d.HandlePoisonReport(context.Background(), evt))

	state, err := d.FormulaState(key)
	require.NoError(t, err)
	assert.Equal(t, dispatching.DetectorStateInit, state)
}

func TestDispatcher_BlockedFormulaIsEvictedAndReplaced(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	firstID := uuid.New()

	var mu sync.Mutex
	created := 0
	factory := func(k reports.RouteKey) (dispatching.Formula, error) {
		mu.Lock()
		defer mu.Unlock()
		created++
		if created == 1 {
			return &mockFormula{id: firstID}, nil
		}
		return &mockFormula{id: uuid.New()}, nil
	}

	pub := new(mockPublisher)
	d := newTestDispatcher(t, factory, pub)

	require.NoError(t, d.Route(context.Background(), reports.Report{Sensor: "rapl", Target: "db"}))

	ctx := context.Background()
	for _, id := range []int{10, 11} {
		require.NoError(t, d.HandlePoisonReport(ctx, dispatching.NewPoisonReportEvent(firstID, key, id, "")))
	}
	require.Empty(t, pub.eventsOfType(dispatching.EventTypeFormulaBlocked))

	// Third consecutive id confirms the block and triggers eviction.
	require.NoError(t, d.HandlePoisonReport(ctx, dispatching.NewPoisonReportEvent(firstID, key, 12, "")))

	blockedEvents := pub.eventsOfType(dispatching.EventTypeFormulaBlocked)
	require.Len(t, blockedEvents, 1)
	blocked := blockedEvents[0].(dispatching.FormulaBlockedEvent)
	assert.Equal(t, firstID, blocked.FormulaID)
	assert.Equal(t, 12, blocked.LastReportID)
	assert.Equal(t, dispatching.FormulaStatusBlocked, blocked.Status)

	evictedEvents := pub.eventsOfType(dispatching.EventTypeFormulaEvicted)
	require.Len(t, evictedEvents, 1)
	evicted := evictedEvents[0].(dispatching.FormulaEvictedEvent)
	assert.Equal(t, firstID, evicted.FormulaID)
	assert.Equal(t, dispatching.FormulaStatusEvicted, evicted.Status)
	assert.NotEqual(t, uuid.Nil, evicted.ReplacementID)
	assert.NotEqual(t, firstID, evicted.ReplacementID)

	// The replacement starts with a fresh detector.
	state, err := d.FormulaState(key)
	require.NoError(t, err)
	assert.Equal(t, dispatching.DetectorStateInit, state)
}

func TestDispatcher_NonConsecutivePoisonDoesNotEvict(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	formulaID := uuid.New()
	formula := &mockFormula{id: formulaID}

	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(map[reports.RouteKey]*mockFormula{key: formula}), pub)

	require.NoError(t, d.Route(context.Background(), reports.Report{Sensor: "rapl", Target: "db"}))

	ctx := context.Background()
	for _, id := range []int{10, 11, 99, 100} {
		require.NoError(t, d.HandlePoisonReport(ctx, dispatching.NewPoisonReportEvent(formulaID, key, id, "")))
	}

	assert.Empty(t, pub.eventsOfType(dispatching.EventTypeFormulaBlocked))

	state, err := d.FormulaState(key)
	require.NoError(t, err)
	assert.Equal(t, dispatching.DetectorStateBlockedInter2, state)
}

func TestDispatcher_AllocateProbeID(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	formulaID := uuid.New()
	formula := &mockFormula{id: formulaID}

	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(map[reports.RouteKey]*mockFormula{key: formula}), pub)

	// Routing consumes id 0 from the shared allocator.
	require.NoError(t, d.Route(context.Background(), reports.Report{Sensor: "rapl", Target: "db"}))

	for want := 1; want < 4; want++ {
		gotID, probeID, err := d.AllocateProbeID(key)
		require.NoError(t, err)
		assert.Equal(t, formulaID, gotID)
		assert.Equal(t, want, probeID)
	}

	_, _, err := d.AllocateProbeID(reports.RouteKey{Sensor: "none", Target: "none"})
	assert.ErrorIs(t, err, ErrFormulaNotFound)
}

func TestDispatcher_FormulaStatusLifecycle(t *testing.T) {
	key := reports.RouteKey{Sensor: "rapl", Target: "db"}
	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(nil), pub)

	status, err := d.FormulaStatus(key)
	assert.ErrorIs(t, err, ErrFormulaNotFound)
	assert.Equal(t, dispatching.FormulaStatusUnspecified, status)

	require.NoError(t, d.Route(context.Background(), reports.Report{Sensor: "rapl", Target: "db"}))

	// The worker flips the status to running as soon as it starts.
	assert.Eventually(t, func() bool {
		status, err := d.FormulaStatus(key)
		return err == nil && status == dispatching.FormulaStatusRunning
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcher_LiveRouteKeys(t *testing.T) {
	pub := new(mockPublisher)
	d := newTestDispatcher(t, staticFactory(nil), pub)

	assert.Empty(t, d.LiveRouteKeys())

	require.NoError(t, d.Route(context.Background(), reports.Report{Sensor: "a", Target: "x"}))
	require.NoError(t, d.Route(context.Background(), reports.Report{Sensor: "b", Target: "y"}))

	keys := d.LiveRouteKeys()
	assert.ElementsMatch(t, []reports.RouteKey{
		{Sensor: "a", Target: "x"},
		{Sensor: "b", Target: "y"},
	}, keys)
}
