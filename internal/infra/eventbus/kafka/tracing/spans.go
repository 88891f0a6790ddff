package tracing

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// StartProducerSpan opens a publish span for an outgoing message, tagged with
// the destination topic and, when set, the partition key (in this system the
// route key, so traces for one sensor/target pair can be grouped).
func StartProducerSpan(ctx context.Context, tracer trace.Tracer, topic, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(topic),
		semconv.MessagingOperationPublish,
	}
	if key != "" {
		attrs = append(attrs, semconv.MessagingKafkaMessageKey(key))
	}
	return tracer.Start(ctx, "dispatcher.kafka.publish", trace.WithAttributes(attrs...))
}

// StartConsumerSpan opens a receive span for a consumed message, carrying its
// partition, offset, and key.
func StartConsumerSpan(ctx context.Context, msg *sarama.ConsumerMessage, tracer trace.Tracer) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(msg.Topic),
		semconv.MessagingOperationReceive,
		semconv.MessagingKafkaDestinationPartition(int(msg.Partition)),
		semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
	}
	if len(msg.Key) > 0 {
		attrs = append(attrs, semconv.MessagingKafkaMessageKey(string(msg.Key)))
	}
	return tracer.Start(ctx, "dispatcher.kafka.receive", trace.WithAttributes(attrs...))
}
