package observability

import "context"

// NoOpTracer discards everything. Spans it returns have no ID, so
// SpanFromContext reports no active span for them.
type NoOpTracer struct{}

var _ Tracer = NoOpTracer{}

func (NoOpTracer) StartTrace(passID string, _ TraceOptions) TraceContext {
	return TraceContext{PassID: passID}
}

func (NoOpTracer) StartSpan(TraceContext, string, SpanOptions) SpanContext { return SpanContext{} }
func (NoOpTracer) RecordGeneration(SpanContext, GenerationInput)          {}
func (NoOpTracer) RecordSkipped(SpanContext, string, string)              {}
func (NoOpTracer) EndSpan(SpanContext, string, int64)                     {}
func (NoOpTracer) CompleteTrace(TraceContext, CompleteOptions)            {}
func (NoOpTracer) Flush(context.Context) error                            { return nil }
func (NoOpTracer) Stop(context.Context) error                             { return nil }
