package observability

import "context"

// Tracer records monitoring passes and the generations made during them.
//
// Trace hierarchy:
//
//	Pass (Trace)
//	  ├── fetch (Span)
//	  ├── respond (Span)
//	  │     └── chat (Generation), or Event if the reply was skipped
//	  └── autonomous (Span)
//	        └── oracle_post (Generation)
type Tracer interface {
	StartTrace(passID string, opts TraceOptions) TraceContext
	StartSpan(trace TraceContext, name string, opts SpanOptions) SpanContext
	RecordGeneration(span SpanContext, gen GenerationInput)
	RecordSkipped(span SpanContext, component string, reason string)
	EndSpan(span SpanContext, status string, durationMs int64)
	CompleteTrace(trace TraceContext, opts CompleteOptions)
	Flush(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TraceContext holds the context for an active trace (pass level).
type TraceContext struct {
	TraceID  string
	PassID   string
	Metadata map[string]string
}

// SpanContext holds the context for an active span (pass step).
type SpanContext struct {
	SpanID   string
	SpanName string
	TraceID  string
}

// TraceOptions configures a new trace.
type TraceOptions struct {
	Name      string
	Persona   string
	SessionID string
}

// SpanOptions configures a new span.
type SpanOptions struct {
	Metadata map[string]string
}

// GenerationInput describes an LLM invocation to record.
type GenerationInput struct {
	Name         string // template name
	Model        string
	Input        string // rendered prompt
	Output       string
	InputTokens  int
	OutputTokens int
	Status       string // "completed" or "error"
	DurationMs   int64
}

// CompleteOptions configures trace completion.
type CompleteOptions struct {
	Status   string // "completed", "failed", "cancelled"
	Replies  int
	Posts    int
	Failures int
}

type spanKey struct{}

// ContextWithSpan returns a copy of ctx carrying span, so generation
// backends can attach their records to the active pass step.
func ContextWithSpan(ctx context.Context, span SpanContext) context.Context {
	return context.WithValue(ctx, spanKey{}, span)
}

// SpanFromContext returns the span stored by ContextWithSpan.
func SpanFromContext(ctx context.Context) (SpanContext, bool) {
	span, ok := ctx.Value(spanKey{}).(SpanContext)
	return span, ok && span.SpanID != ""
}
