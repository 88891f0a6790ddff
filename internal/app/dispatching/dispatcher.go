// Package dispatching implements the application-level dispatcher: it routes
// incoming reports to per-key formula workers and supervises formula liveness
// through per-formula blocking detectors.
package dispatching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spirals/formula-dispatch/internal/domain/dispatching"
	"github.com/spirals/formula-dispatch/internal/domain/events"
	"github.com/spirals/formula-dispatch/internal/domain/reports"
	"github.com/spirals/formula-dispatch/pkg/common/logger"
)

// ErrReportIDOutOfRange is returned when a poison notification carries a
// correlation id outside [0, MaxMessageID]. Such ids are a contract violation
// by the sender and never reach the blocking detector.
var ErrReportIDOutOfRange = errors.New("report id out of range")

// ErrFormulaNotFound is returned when an operation references a route key with
// no registered formula.
var ErrFormulaNotFound = errors.New("formula not found")

// DispatcherMetrics defines the metric operations recorded by the dispatcher.
type DispatcherMetrics interface {
	IncReportsRouted(ctx context.Context)
	IncPoisonReports(ctx context.Context)
	IncFormulasBlocked(ctx context.Context)
	IncFormulasEvicted(ctx context.Context)
	IncProbesSent(ctx context.Context)
}

// formulaEntry is the dispatcher-side record for one live formula. The entry
// owns the formula's blocking detector; mu serializes all detector mutation
// and status changes, since the detector itself carries no synchronization.
type formulaEntry struct {
	mu       sync.Mutex
	formula  dispatching.Formula
	detector *dispatching.BlockingDetector
	status   dispatching.FormulaStatus

	inbox  chan reports.Report
	cancel context.CancelFunc
}

var _ dispatching.FormulaMonitor = (*Dispatcher)(nil)
var _ dispatching.FormulaEvictor = (*Dispatcher)(nil)

// Dispatcher owns the registry from route keys to formula entries. Formulas
// are created lazily through the factory on first sight of a key, monitored
// via their detectors, and replaced when confirmed blocked. Detectors are
// never shared or reused: eviction discards the detector along with the
// formula, and the replacement starts from a fresh one.
type Dispatcher struct {
	factory        dispatching.FormulaFactory
	eventPublisher events.DomainEventPublisher

	mu       sync.RWMutex
	registry map[reports.RouteKey]*formulaEntry

	// inboxSize bounds each formula worker's pending reports.
	inboxSize int

	// cancel allows graceful shutdown of formula workers.
	cancel context.CancelFunc
	ctx    context.Context

	tracer  trace.Tracer
	logger  *logger.Logger
	metrics DispatcherMetrics
}

// NewDispatcher creates a Dispatcher that builds formulas with the given
// factory and publishes lifecycle events through eventPublisher.
func NewDispatcher(
	factory dispatching.FormulaFactory,
	eventPublisher events.DomainEventPublisher,
	metrics DispatcherMetrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		factory:        factory,
		eventPublisher: eventPublisher,
		registry:       make(map[reports.RouteKey]*formulaEntry),
		inboxSize:      64,
		tracer:         tracer,
		logger:         logger.With("component", "dispatcher"),
		metrics:        metrics,
	}
}

// Start prepares the dispatcher for routing. Formula workers launched after
// this point are tied to the given context and stop when it is canceled or
// Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.logger.Info(ctx, "Dispatcher started")
}

// Stop cancels all formula workers and clears the registry.
func (d *Dispatcher) Stop() {
	ctx, span := d.tracer.Start(context.Background(), "dispatcher.dispatching.stop")
	defer span.End()

	if d.cancel != nil {
		d.cancel()
	}

	d.mu.Lock()
	for key, entry := range d.registry {
		entry.cancel()
		delete(d.registry, key)
	}
	d.mu.Unlock()

	span.AddEvent("dispatcher_stopped")
	d.logger.Info(ctx, "Dispatcher stopped")
}

// Route dispatches a report to the formula owning its route key, creating the
// formula on first sight. The report is stamped with the next id from the
// formula's allocator before delivery; probes draw from the same counter, so
// a formula failing everything it receives reflects a consecutive id run.
// The report is handed to the formula's worker goroutine; Route does not wait
// for processing.
func (d *Dispatcher) Route(ctx context.Context, report reports.Report) error {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatching.route",
		trace.WithAttributes(
			attribute.String("sensor", report.Sensor),
			attribute.String("target", report.Target),
		))
	defer span.End()

	key := report.Route()
	entry, err := d.entryFor(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve formula")
		return err
	}

	entry.mu.Lock()
	report.DispatcherID = entry.detector.AllocateProbeID()
	entry.mu.Unlock()
	span.SetAttributes(attribute.Int("dispatcher_id", report.DispatcherID))

	select {
	case entry.inbox <- report:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.metrics.IncReportsRouted(ctx)
	span.AddEvent("report_routed")
	span.SetStatus(codes.Ok, "report routed")
	return nil
}

// HandlePoisonReport processes a reflected poison notification. The reflected
// id is range-checked at this boundary, then fed to the formula's detector;
// if the detector confirms the formula is blocked, it is evicted and replaced.
func (d *Dispatcher) HandlePoisonReport(ctx context.Context, evt dispatching.PoisonReportEvent) error {
	logr := logger.NewLoggerContext(d.logger.With("operation", "handle_poison_report"))
	logr.Add("formula_id", evt.FormulaID, "route_key", evt.RouteKey.String(), "report_id", evt.ReportID)

	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatching.handle_poison_report",
		trace.WithAttributes(
			attribute.String("formula_id", evt.FormulaID.String()),
			attribute.String("route_key", evt.RouteKey.String()),
			attribute.Int("report_id", evt.ReportID),
		))
	defer span.End()

	if evt.ReportID < 0 || evt.ReportID > dispatching.MaxMessageID {
		err := fmt.Errorf("%w: %d", ErrReportIDOutOfRange, evt.ReportID)
		logr.Error(ctx, "Rejected poison notification", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "report id out of range")
		return err
	}

	d.mu.RLock()
	entry, ok := d.registry[evt.RouteKey]
	d.mu.RUnlock()
	if !ok {
		span.AddEvent("formula_not_registered")
		return fmt.Errorf("%w: %s", ErrFormulaNotFound, evt.RouteKey)
	}

	entry.mu.Lock()
	if entry.formula.ID() != evt.FormulaID {
		// Stale notification from an already-replaced formula. Detector state
		// is never reused across formula identities, so drop it.
		entry.mu.Unlock()
		logr.Debug(ctx, "Ignoring poison notification for replaced formula")
		span.AddEvent("stale_poison_ignored")
		return nil
	}

	entry.detector.NotifyPoisonReceived(evt.ReportID)
	blocked := entry.detector.IsBlocked()
	if blocked {
		entry.status = dispatching.FormulaStatusBlocked
	}
	state := entry.detector.State()
	entry.mu.Unlock()

	d.metrics.IncPoisonReports(ctx)
	span.AddEvent("poison_recorded", trace.WithAttributes(
		attribute.String("detector_state", state.String()),
	))

	if !blocked {
		span.SetStatus(codes.Ok, "poison recorded")
		return nil
	}

	logr.Warn(ctx, "Formula confirmed blocked", "detector_state", state)
	d.metrics.IncFormulasBlocked(ctx)

	blockedEvt := dispatching.NewFormulaBlockedEvent(evt.FormulaID, evt.RouteKey, evt.ReportID)
	if err := d.eventPublisher.PublishDomainEvent(ctx, blockedEvt, events.WithKey(evt.RouteKey.String())); err != nil {
		logr.Error(ctx, "Failed to publish formula blocked event", "err", err)
		span.RecordError(err)
	}

	if err := d.EvictFormula(ctx, evt.RouteKey); err != nil {
		logr.Error(ctx, "Failed to evict blocked formula", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "eviction failed")
		return err
	}

	span.SetStatus(codes.Ok, "blocked formula evicted")
	return nil
}

// EvictFormula removes the formula for the given route key and replaces it
// with a fresh instance built through the factory. Replacement is retried
// with exponential backoff so a transiently failing factory does not leave
// the key unserved.
func (d *Dispatcher) EvictFormula(ctx context.Context, key reports.RouteKey) error {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatching.evict_formula",
		trace.WithAttributes(
			attribute.String("route_key", key.String()),
		))
	defer span.End()

	d.mu.Lock()
	entry, ok := d.registry[key]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFormulaNotFound, key)
	}
	delete(d.registry, key)
	d.mu.Unlock()

	entry.cancel()
	entry.mu.Lock()
	evictedID := entry.formula.ID()
	entry.status = dispatching.FormulaStatusEvicted
	entry.mu.Unlock()

	d.metrics.IncFormulasEvicted(ctx)
	span.AddEvent("formula_evicted", trace.WithAttributes(
		attribute.String("formula_id", evictedID.String()),
		attribute.Int("formula_status", int(dispatching.FormulaStatusEvicted.Int32())),
	))
	d.logger.Info(ctx, "Formula evicted", "formula_id", evictedID, "route_key", key.String())

	var replacement *formulaEntry
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 30 * time.Second
	operation := func() error {
		var err error
		replacement, err = d.register(ctx, key)
		return err
	}
	replacementID := uuid.Nil
	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		d.logger.Error(ctx, "Failed to create replacement formula", "route_key", key.String(), "err", err)
		span.RecordError(err)
	} else {
		replacement.mu.Lock()
		replacementID = replacement.formula.ID()
		replacement.mu.Unlock()
	}

	evictedEvt := dispatching.NewFormulaEvictedEvent(evictedID, key, replacementID)
	if err := d.eventPublisher.PublishDomainEvent(ctx, evictedEvt, events.WithKey(key.String())); err != nil {
		d.logger.Error(ctx, "Failed to publish formula evicted event", "err", err)
		span.RecordError(err)
		return err
	}

	span.SetStatus(codes.Ok, "formula evicted")
	return nil
}

// AllocateProbeID hands out the next probe id for the formula at the given
// route key, so the caller can tag an outbound probe with it.
func (d *Dispatcher) AllocateProbeID(key reports.RouteKey) (uuid.UUID, int, error) {
	d.mu.RLock()
	entry, ok := d.registry[key]
	d.mu.RUnlock()
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("%w: %s", ErrFormulaNotFound, key)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.formula.ID(), entry.detector.AllocateProbeID(), nil
}

// LiveRouteKeys returns the keys of all currently registered formulas.
func (d *Dispatcher) LiveRouteKeys() []reports.RouteKey {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]reports.RouteKey, 0, len(d.registry))
	for key := range d.registry {
		keys = append(keys, key)
	}
	return keys
}

// FormulaState reports the detector state for the formula at the given key.
func (d *Dispatcher) FormulaState(key reports.RouteKey) (dispatching.DetectorState, error) {
	d.mu.RLock()
	entry, ok := d.registry[key]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFormulaNotFound, key)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.detector.State(), nil
}

// FormulaStatus reports the lifecycle status of the formula at the given key.
func (d *Dispatcher) FormulaStatus(key reports.RouteKey) (dispatching.FormulaStatus, error) {
	d.mu.RLock()
	entry, ok := d.registry[key]
	d.mu.RUnlock()
	if !ok {
		return dispatching.FormulaStatusUnspecified, fmt.Errorf("%w: %s", ErrFormulaNotFound, key)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.status, nil
}

// entryFor returns the live entry for a key, registering a new formula if the
// key has not been seen before.
func (d *Dispatcher) entryFor(ctx context.Context, key reports.RouteKey) (*formulaEntry, error) {
	d.mu.RLock()
	entry, ok := d.registry[key]
	d.mu.RUnlock()
	if ok {
		return entry, nil
	}

	d.mu.Lock()
	if entry, ok = d.registry[key]; ok {
		d.mu.Unlock()
		return entry, nil
	}
	d.mu.Unlock()

	return d.register(ctx, key)
}

// register builds a formula via the factory, wires a fresh detector and
// worker goroutine, and installs the entry in the registry.
func (d *Dispatcher) register(ctx context.Context, key reports.RouteKey) (*formulaEntry, error) {
	formula, err := d.factory(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create formula for %s: %w", key, err)
	}

	parent := d.ctx
	if parent == nil {
		parent = context.Background()
	}
	workerCtx, cancel := context.WithCancel(parent)

	entry := &formulaEntry{
		formula:  formula,
		detector: dispatching.NewBlockingDetector(),
		status:   dispatching.FormulaStatusPending,
		inbox:    make(chan reports.Report, d.inboxSize),
		cancel:   cancel,
	}

	d.mu.Lock()
	if existing, ok := d.registry[key]; ok {
		// Lost the race with a concurrent registration; keep the winner.
		d.mu.Unlock()
		cancel()
		return existing, nil
	}
	d.registry[key] = entry
	d.mu.Unlock()

	go d.runFormula(workerCtx, key, entry)

	d.logger.Info(ctx, "Formula registered",
		"formula_id", formula.ID(),
		"route_key", key.String(),
	)
	return entry, nil
}

// runFormula is the worker loop for one formula. It serializes all report
// processing for its key; a processing failure is reflected back as a poison
// notification carrying the report's dispatcher id.
func (d *Dispatcher) runFormula(ctx context.Context, key reports.RouteKey, entry *formulaEntry) {
	entry.mu.Lock()
	entry.status = dispatching.FormulaStatusRunning
	formulaID := entry.formula.ID()
	entry.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return

		case report := <-entry.inbox:
			if err := entry.formula.Process(ctx, report); err != nil {
				d.logger.Warn(ctx, "Formula failed to process report",
					"formula_id", formulaID,
					"route_key", key.String(),
					"report_id", report.DispatcherID,
					"err", err,
				)

				poisonEvt := dispatching.NewPoisonReportEvent(formulaID, key, report.DispatcherID, err.Error())
				if pubErr := d.eventPublisher.PublishDomainEvent(ctx, poisonEvt, events.WithKey(key.String())); pubErr != nil {
					d.logger.Error(ctx, "Failed to publish poison report", "err", pubErr)
				}
			}
		}
	}
}
