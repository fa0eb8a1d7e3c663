package storage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/player-oidc/instrumentation"
)

// OpRecorder emits a span and a duration metric per storage operation.
// The zero value and a nil *OpRecorder are valid and record nothing.
type OpRecorder struct {
	backend string
	inst    *instrumentation.Instrumentation
	tracer  trace.Tracer
}

// NewOpRecorder returns a recorder labelling operations with backend
func NewOpRecorder(backend string, inst *instrumentation.Instrumentation) *OpRecorder {
	r := &OpRecorder{backend: backend, inst: inst}
	if inst != nil {
		r.tracer = inst.Tracer("storage")
	}
	return r
}

// Start starts a span for a storage operation
func (r *OpRecorder) Start(ctx context.Context, operation string) (context.Context, trace.Span) {
	if r == nil || r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := r.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, r.backend)
	return ctx, span
}

// Done records the operation outcome and ends the span. Lookups that miss
// are recorded as "not_found" and do not mark the span as failed.
func (r *OpRecorder) Done(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if r == nil || r.tracer == nil {
		return
	}
	defer span.End()

	result := "success"
	switch {
	case err == nil:
		instrumentation.SetSpanSuccess(span)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrClientNotFound):
		result = "not_found"
		instrumentation.SetSpanSuccess(span)
	default:
		result = "error"
		instrumentation.RecordError(span, err)
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000
	r.inst.Metrics().RecordStorageOperation(ctx, r.backend, operation, result, durationMs)
}

// CloneClient returns a copy of c so callers cannot mutate stored state
func CloneClient(c *ClientRecord) *ClientRecord {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
