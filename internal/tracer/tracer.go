// Package tracer is a small tracing abstraction over OpenTelemetry so the
// verification path can emit spans without binding every package to the otel
// APIs. The noop implementation keeps tests overhead-free.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span.
type Span interface {
	// End completes the span, recording a non-nil error as a failure.
	// Call exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used on the verification path.
const (
	SpanVerify        = "verify.proof"
	SpanFetchDocument = "verify.fetch_document"
	SpanPairingCheck  = "verify.pairing_check"
	SpanDispatchCycle = "dispatch.cycle"
	SpanResign        = "resign.run"
)

// Attribute keys used on the verification path.
const (
	AttrSessionID   = "session_id"
	AttrProofType   = "proof_type"
	AttrCID         = "cid"
	AttrOutcome     = "outcome"
	AttrCacheHit    = "cache.hit"
	AttrInFlight    = "dispatch.in_flight"
	AttrResignStage = "resign.stage"
)

// NewNoop returns a tracer that records nothing.
func NewNoop() Tracer {
	return noopTracer{}
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error)                      {}
func (noopSpan) SetAttributes(...Attribute)     {}
func (noopSpan) AddEvent(string, ...Attribute)  {}
