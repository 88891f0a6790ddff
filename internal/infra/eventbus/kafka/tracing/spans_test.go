package tracing

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func newRecordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder, tp
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestStartProducerSpan_TagsTopicAndKey(t *testing.T) {
	recorder, tp := newRecordingTracer(t)
	tracer := tp.Tracer("test")

	_, span := StartProducerSpan(context.Background(), tracer, "power.reports", "rapl:db")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "dispatcher.kafka.publish", spans[0].Name())

	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "kafka", attrs[semconv.MessagingSystemKey].AsString())
	assert.Equal(t, "power.reports", attrs[semconv.MessagingDestinationNameKey].AsString())
	assert.Equal(t, "rapl:db", attrs[semconv.MessagingKafkaMessageKeyKey].AsString())
}

func TestStartProducerSpan_OmitsEmptyKey(t *testing.T) {
	recorder, tp := newRecordingTracer(t)
	tracer := tp.Tracer("test")

	_, span := StartProducerSpan(context.Background(), tracer, "power.reports", "")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	attrs := attrMap(spans[0].Attributes())
	_, ok := attrs[semconv.MessagingKafkaMessageKeyKey]
	assert.False(t, ok, "unkeyed messages should not carry a key attribute")
}

func TestStartConsumerSpan_TagsPartitionAndOffset(t *testing.T) {
	recorder, tp := newRecordingTracer(t)
	tracer := tp.Tracer("test")

	msg := &sarama.ConsumerMessage{
		Topic:     "power.reports",
		Partition: 3,
		Offset:    42,
		Key:       []byte("rapl:db"),
	}
	_, span := StartConsumerSpan(context.Background(), msg, tracer)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "dispatcher.kafka.receive", spans[0].Name())

	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "power.reports", attrs[semconv.MessagingDestinationNameKey].AsString())
	assert.Equal(t, int64(3), attrs[semconv.MessagingKafkaDestinationPartitionKey].AsInt64())
	assert.Equal(t, int64(42), attrs[semconv.MessagingKafkaMessageOffsetKey].AsInt64())
	assert.Equal(t, "rapl:db", attrs[semconv.MessagingKafkaMessageKeyKey].AsString())
}
