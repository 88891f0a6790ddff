// Package metrics provides the otel-backed metrics implementation for the
// dispatcher service.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Dispatcher implements the dispatcher's DispatcherMetrics and the event
// bus's EventBusMetrics.
type Dispatcher struct {
	// Broker metrics.
	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter

	// Dispatching metrics.
	reportsRouted   metric.Int64Counter
	poisonReports   metric.Int64Counter
	formulasBlocked metric.Int64Counter
	formulasEvicted metric.Int64Counter
	probesSent      metric.Int64Counter
}

const namespace = "dispatcher"

// New creates a new Dispatcher metrics instance.
func New(mp metric.MeterProvider) (*Dispatcher, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	d := new(Dispatcher)
	var err error

	if d.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}

	if d.messagesConsumed, err = meter.Int64Counter(
		"messages_consumed_total",
		metric.WithDescription("Total number of messages consumed"),
	); err != nil {
		return nil, err
	}

	if d.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}

	if d.consumeErrors, err = meter.Int64Counter(
		"consume_errors_total",
		metric.WithDescription("Total number of consume errors"),
	); err != nil {
		return nil, err
	}

	if d.reportsRouted, err = meter.Int64Counter(
		"reports_routed_total",
		metric.WithDescription("Total number of reports routed to formulas"),
	); err != nil {
		return nil, err
	}

	if d.poisonReports, err = meter.Int64Counter(
		"poison_reports_total",
		metric.WithDescription("Total number of poison notifications processed"),
	); err != nil {
		return nil, err
	}

	if d.formulasBlocked, err = meter.Int64Counter(
		"formulas_blocked_total",
		metric.WithDescription("Total number of formulas confirmed blocked"),
	); err != nil {
		return nil, err
	}

	if d.formulasEvicted, err = meter.Int64Counter(
		"formulas_evicted_total",
		metric.WithDescription("Total number of formulas evicted"),
	); err != nil {
		return nil, err
	}

	if d.probesSent, err = meter.Int64Counter(
		"probes_sent_total",
		metric.WithDescription("Total number of diagnostic probes sent"),
	); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Dispatcher) IncMessagePublished(ctx context.Context, topic string) {
	d.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (d *Dispatcher) IncMessageConsumed(ctx context.Context, topic string) {
	d.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (d *Dispatcher) IncPublishError(ctx context.Context, topic string) {
	d.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (d *Dispatcher) IncConsumeError(ctx context.Context, topic string) {
	d.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (d *Dispatcher) IncReportsRouted(ctx context.Context) { d.reportsRouted.Add(ctx, 1) }

func (d *Dispatcher) IncPoisonReports(ctx context.Context) { d.poisonReports.Add(ctx, 1) }

func (d *Dispatcher) IncFormulasBlocked(ctx context.Context) { d.formulasBlocked.Add(ctx, 1) }

func (d *Dispatcher) IncFormulasEvicted(ctx context.Context) { d.formulasEvicted.Add(ctx, 1) }

func (d *Dispatcher) IncProbesSent(ctx context.Context) { d.probesSent.Add(ctx, 1) }
