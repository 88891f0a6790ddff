package dispatching

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spirals/formula-dispatch/internal/domain/dispatching"
	"github.com/spirals/formula-dispatch/internal/domain/events"
	"github.com/spirals/formula-dispatch/pkg/common"
	"github.com/spirals/formula-dispatch/pkg/common/logger"
)

// Prober periodically sends diagnostic probes to every live formula. Each
// probe is tagged with an id from the formula's allocator so a poison
// notification reflecting that id can be correlated by the blocking detector.
// Probe sends are rate limited to avoid flooding the bus when many formulas
// are registered.
//
// Probes travel the event bus to the formula runtime. A deployment without an
// external runtime (the in-process bus) gets no reflections for them and
// detects stuck formulas through failing report processing alone.
type Prober struct {
	dispatcher     *Dispatcher
	eventPublisher events.DomainEventPublisher

	interval time.Duration
	limiter  *common.RateLimiter

	mu     sync.Mutex
	cancel context.CancelFunc

	tracer  trace.Tracer
	logger  *logger.Logger
	metrics DispatcherMetrics
}

// NewProber creates a Prober over the dispatcher's live formulas. interval
// controls the probe sweep cadence; ratePerSecond and burst bound the
// aggregate send rate.
func NewProber(
	dispatcher *Dispatcher,
	eventPublisher events.DomainEventPublisher,
	interval time.Duration,
	ratePerSecond float64,
	burst int,
	metrics DispatcherMetrics,
	tracer trace.Tracer,
	logger *logger.Logger,
) *Prober {
	return &Prober{
		dispatcher:     dispatcher,
		eventPublisher: eventPublisher,
		interval:       interval,
		limiter:        common.NewRateLimiter(ratePerSecond, burst),
		tracer:         tracer,
		logger:         logger.With("component", "prober"),
		metrics:        metrics,
	}
}

// Start launches the background probe loop. The loop runs until the provided
// context is canceled or Stop is called.
func (p *Prober) Start(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "prober.dispatching.start",
		trace.WithAttributes(
			attribute.String("interval", p.interval.String()),
		))
	defer span.End()

	p.mu.Lock()
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	span.AddEvent("probe_loop_started")

	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				p.sweep(ctx)
			}
		}
	}()
}

// UpdateRate adjusts the probe send rate and burst size at runtime.
func (p *Prober) UpdateRate(ratePerSecond float64, burst int) {
	p.limiter.UpdateLimits(ratePerSecond, burst)
}

// Stop terminates the probe loop.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// sweep sends one probe to every live formula, respecting the rate limit.
func (p *Prober) sweep(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "prober.dispatching.sweep")
	defer span.End()

	keys := p.dispatcher.LiveRouteKeys()
	span.SetAttributes(attribute.Int("live_formulas", len(keys)))

	for _, key := range keys {
		if err := p.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return
		}

		formulaID, probeID, err := p.dispatcher.AllocateProbeID(key)
		if err != nil {
			if errors.Is(err, ErrFormulaNotFound) {
				// The formula was evicted between the snapshot and now.
				continue
			}
			p.logger.Error(ctx, "Failed to allocate probe id", "route_key", key.String(), "err", err)
			span.RecordError(err)
			continue
		}

		probeEvt := dispatching.NewProbeSentEvent(formulaID, key, probeID)
		if err := p.eventPublisher.PublishDomainEvent(ctx, probeEvt, events.WithKey(key.String())); err != nil {
			p.logger.Error(ctx, "Failed to publish probe", "route_key", key.String(), "err", err)
			span.RecordError(err)
			continue
		}

		p.metrics.IncProbesSent(ctx)
		p.logger.Debug(ctx, "Probe sent",
			"route_key", key.String(),
			"probe_id", probeID,
		)
	}

	span.SetStatus(codes.Ok, "sweep completed")
}
