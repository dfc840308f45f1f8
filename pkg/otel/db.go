package otel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DBSpan starts a client span for a document store operation on collection.
func DBSpan(ctx context.Context, operation, collection string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBOperationKey.String(operation),
			attribute.String("db.collection", collection),
		),
	)
}

// WithDBSpan runs fn inside a DB span and records its error.
func WithDBSpan(ctx context.Context, operation, collection string, fn func(context.Context) error) error {
	ctx, span := DBSpan(ctx, operation, collection)
	defer span.End()

	err := fn(ctx)
	RecordDBError(span, err)
	return err
}

// RecordDBError marks the span failed. pgx.ErrNoRows is an expected outcome.
func RecordDBError(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, pgx.ErrNoRows):
		span.SetStatus(codes.Ok, "no rows")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
