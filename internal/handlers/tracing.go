package handlers

import (
	"context"

	"github.com/SteelMorgan/vpngate-harvester/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "vpngate-harvester/handlers"
)

// startSpan creates a new span for handler operation
func startSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, tracerName, operationName, attrs...)
}

// endSpanWithError marks span as failed and ends it
func endSpanWithError(span trace.Span, err error, msg string) {
	observability.EndSpan(span, err, msg)
}

// endSpanSuccess marks span as successful and ends it
func endSpanSuccess(span trace.Span) {
	observability.EndSpan(span, nil, "success")
}
