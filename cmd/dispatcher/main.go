package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	appdispatching "github.com/spirals/formula-dispatch/internal/app/dispatching"
	"github.com/spirals/formula-dispatch/internal/app/dispatching/metrics"
	"github.com/spirals/formula-dispatch/internal/app/formula"
	"github.com/spirals/formula-dispatch/internal/config/envloader"
	"github.com/spirals/formula-dispatch/internal/domain/events"
	"github.com/spirals/formula-dispatch/internal/infra/eventbus/kafka"
	"github.com/spirals/formula-dispatch/internal/infra/eventbus/memory"
	"github.com/spirals/formula-dispatch/pkg/common"
	"github.com/spirals/formula-dispatch/pkg/common/logger"
	"github.com/spirals/formula-dispatch/pkg/common/otel"
)

const serviceType = "dispatcher"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("DISPATCHER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log = logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prob := 0.05
	if v := os.Getenv("OTEL_SAMPLING_RATIO"); v != "" {
		prob, err = strconv.ParseFloat(v, 64)
		if err != nil {
			log.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
			os.Exit(1)
		}
	}
	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      svcName,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Probability:      prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"hostname":         hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		log.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(svcName)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready, log)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	cfgLoader := envloader.NewEnvLoader(os.Getenv("DISPATCH_CONFIG_FILE"))
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}

	mp := otel.GetMeterProvider()
	metricCollector, err := metrics.New(mp)
	if err != nil {
		log.Error(ctx, "failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	var eventBus events.EventBus
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := &kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			ReportsTopic:   cfg.Kafka.ReportsTopic,
			PoisonTopic:    cfg.Kafka.PoisonTopic,
			ProbeTopic:     cfg.Kafka.ProbeTopic,
			LifecycleTopic: cfg.Kafka.LifecycleTopic,
			GroupID:        cfg.Kafka.GroupID,
			ClientID:       svcName,
			ServiceType:    serviceType,
		}
		eventBus, err = kafka.ConnectWithRetry(kafkaCfg, log, metricCollector, tracer)
		if err != nil {
			log.Error(ctx, "failed to connect event bus", "error", err)
			os.Exit(1)
		}
	} else {
		// Single-binary mode. Probe notifications have no external formula
		// runtime to land in here, so liveness detection rides on poison
		// notifications from failing report processing alone.
		log.Warn(ctx, "No Kafka brokers configured, using in-process event bus")
		eventBus = memory.NewBroker()
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Error(ctx, "Error closing event bus", "error", err)
		}
	}()

	eventPublisher := kafka.NewDomainEventPublisher(eventBus)

	formulaFactory := formula.NewDummyFactory(formulaDelay(), log)

	dispatcher := appdispatching.NewDispatcher(formulaFactory, eventPublisher, metricCollector, tracer, log)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	handler := appdispatching.NewEventHandler(dispatcher)
	if err := handler.Register(ctx, eventBus); err != nil {
		log.Error(ctx, "failed to subscribe dispatcher handler", "error", err)
		os.Exit(1)
	}

	prober := appdispatching.NewProber(
		dispatcher,
		eventPublisher,
		cfg.Probe.Interval,
		cfg.Probe.RatePerSecond,
		cfg.Probe.Burst,
		metricCollector,
		tracer,
		log,
	)
	prober.Start(ctx)
	defer prober.Stop()

	ready.Store(true)
	log.Info(ctx, "Dispatcher service started",
		"probe_interval", cfg.Probe.Interval.String(),
		"kafka_brokers", cfg.Kafka.Brokers,
	)

	sig := <-sigCh
	log.Info(ctx, "Shutting down", "signal", sig.String())
}

// formulaDelay reads the simulated per-report computation delay for the dummy
// formula, defaulting to none.
func formulaDelay() time.Duration {
	v := os.Getenv("DISPATCH_FORMULA_DELAY")
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
