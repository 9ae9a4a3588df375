package queryclient

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gridbase/internal/dataerr"
)

func startClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("gridbase/queryclient")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishClientSpan(span trace.Span, err *dataerr.Error) {
	if span == nil {
		return
	}
	if err == nil {
		span.SetAttributes(attribute.String("query.outcome", "success"))
		return
	}
	span.SetAttributes(
		attribute.String("query.outcome", "error"),
		attribute.String("query.error.kind", err.Kind.String()),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
