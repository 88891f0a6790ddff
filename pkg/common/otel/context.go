package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// zeroTraceID is reported when the context carries no recorded span, so log
// correlation fields stay fixed-width.
const zeroTraceID = "00000000000000000000000000000000"

// GetTraceID returns the trace id recorded in the context, or the all-zero id
// when there is none.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return zeroTraceID
	}
	return sc.TraceID().String()
}
