package observability

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// defaultBaseURL is the Langfuse Cloud ingestion endpoint.
	defaultBaseURL = "https://cloud.langfuse.com"

	defaultFlushInterval = 5 * time.Second
	defaultSendTimeout   = 10 * time.Second

	// maxBatchSize is the maximum number of events sent in one request.
	maxBatchSize = 50

	// maxBuffered caps the events held between flushes.
	maxBuffered = 1024
)

// LangfuseConfig holds Langfuse connection parameters.
type LangfuseConfig struct {
	PublicKey string
	SecretKey string
	BaseURL   string // Defaults to https://cloud.langfuse.com

	// FlushInterval is how often buffered events are sent. Defaults to 5s.
	FlushInterval time.Duration
}

// Stats counts what happened to recorded events.
type Stats struct {
	Sent     int64 // accepted by the API
	Rejected int64 // refused by the API, per event or per batch
	Dropped  int64 // never sent: buffer full or tracer stopped
}

// LangfuseTracer sends one trace per monitoring pass to the Langfuse
// ingestion API. Events are buffered and sent in batches by a background
// goroutine, when a batch fills up, or on Flush.
type LangfuseTracer struct {
	config LangfuseConfig
	client *ingestClient
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending []ingestionEvent
	stopped bool

	// sendMu serializes batch sends so Flush and the loop never interleave.
	sendMu sync.Mutex

	kick     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	sent, rejected, dropped atomic.Int64
}

// Ensure LangfuseTracer implements Tracer
var _ Tracer = (*LangfuseTracer)(nil)

// NewLangfuseTracer creates a tracer and starts its background sender.
// Call Stop to send what is still buffered.
func NewLangfuseTracer(cfg LangfuseConfig, logger *log.Logger) *LangfuseTracer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	t := &LangfuseTracer{
		config: cfg,
		client: newIngestClient(cfg.BaseURL, cfg.PublicKey, cfg.SecretKey, defaultSendTimeout),
		logger: logger,
		now:    time.Now,
		kick:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}

	t.wg.Add(1)
	go t.loop()
	return t
}

func (t *LangfuseTracer) timestamp() string {
	return t.now().UTC().Format(time.RFC3339Nano)
}

// StartTrace opens the trace for one pass. The pass ID doubles as the trace
// ID so a pass in the activity log can be looked up directly.
func (t *LangfuseTracer) StartTrace(passID string, opts TraceOptions) TraceContext {
	body := traceBody{
		ID:        passID,
		Name:      opts.Name,
		SessionID: opts.SessionID,
		Timestamp: t.timestamp(),
		Metadata:  map[string]interface{}{"persona": opts.Persona},
	}
	if opts.Persona != "" {
		body.Tags = []string{opts.Persona}
	}
	t.enqueue("trace-create", body)

	return TraceContext{
		TraceID: passID,
		PassID:  passID,
		Metadata: map[string]string{
			"name":    opts.Name,
			"persona": opts.Persona,
		},
	}
}

// StartSpan opens a span for one step of a pass (fetch, respond, autonomous).
func (t *LangfuseTracer) StartSpan(trace TraceContext, name string, opts SpanOptions) SpanContext {
	span := SpanContext{
		SpanID:   uuid.NewString(),
		SpanName: name,
		TraceID:  trace.TraceID,
	}

	var metadata map[string]interface{}
	if len(opts.Metadata) > 0 {
		metadata = make(map[string]interface{}, len(opts.Metadata))
		for k, v := range opts.Metadata {
			metadata[k] = v
		}
	}

	t.enqueue("span-create", observationBody{
		ID:        span.SpanID,
		TraceID:   span.TraceID,
		Name:      name,
		Metadata:  metadata,
		StartTime: t.timestamp(),
	})
	return span
}

// RecordGeneration records one template rendering sent to the model.
func (t *LangfuseTracer) RecordGeneration(span SpanContext, gen GenerationInput) {
	level := ""
	if gen.Status == "error" {
		level = "ERROR"
	}

	end := t.now().UTC()
	start := end.Add(-time.Duration(gen.DurationMs) * time.Millisecond)

	t.enqueue("generation-create", observationBody{
		ID:                  uuid.NewString(),
		TraceID:             span.TraceID,
		ParentObservationID: span.SpanID,
		Name:                gen.Name,
		Model:               gen.Model,
		Input:               gen.Input,
		Output:              gen.Output,
		Level:               level,
		Usage:               &usageBody{Input: gen.InputTokens, Output: gen.OutputTokens},
		Metadata: map[string]interface{}{
			"status":      gen.Status,
			"duration_ms": gen.DurationMs,
		},
		StartTime: start.Format(time.RFC3339Nano),
		EndTime:   end.Format(time.RFC3339Nano),
	})
}

// RecordSkipped records an interaction or post that was not generated.
func (t *LangfuseTracer) RecordSkipped(span SpanContext, component string, reason string) {
	t.enqueue("event-create", observationBody{
		ID:                  uuid.NewString(),
		TraceID:             span.TraceID,
		ParentObservationID: span.SpanID,
		Name:                component + " skipped",
		Metadata:            map[string]interface{}{"skip_reason": reason},
		StartTime:           t.timestamp(),
	})
}

// EndSpan closes a span.
func (t *LangfuseTracer) EndSpan(span SpanContext, status string, durationMs int64) {
	body := observationBody{
		ID:      span.SpanID,
		TraceID: span.TraceID,
		Metadata: map[string]interface{}{
			"status":      status,
			"duration_ms": durationMs,
		},
		EndTime: t.timestamp(),
	}
	if status == "failed" {
		body.Level = "ERROR"
	}
	t.enqueue("span-update", body)
}

// CompleteTrace records the pass outcome. Langfuse upserts traces by ID, so
// this is a second trace-create.
func (t *LangfuseTracer) CompleteTrace(trace TraceContext, opts CompleteOptions) {
	t.enqueue("trace-create", traceBody{
		ID: trace.TraceID,
		Metadata: map[string]interface{}{
			"status":   opts.Status,
			"replies":  opts.Replies,
			"posts":    opts.Posts,
			"failures": opts.Failures,
		},
	})
}

// Flush sends everything buffered and returns the first batch error.
func (t *LangfuseTracer) Flush(ctx context.Context) error {
	if err := t.sendPending(ctx); err != nil {
		return fmt.Errorf("langfuse flush: %w", err)
	}
	return nil
}

// Stop ends the background sender and sends what is left. Events recorded
// after Stop are dropped. Safe to call more than once.
func (t *LangfuseTracer) Stop(ctx context.Context) error {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()

	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	err := t.Flush(ctx)
	s := t.Stats()
	t.logger.Printf("Langfuse: stopped (sent=%d, rejected=%d, dropped=%d)", s.Sent, s.Rejected, s.Dropped)
	return err
}

// Stats returns delivery counters.
func (t *LangfuseTracer) Stats() Stats {
	return Stats{
		Sent:     t.sent.Load(),
		Rejected: t.rejected.Load(),
		Dropped:  t.dropped.Load(),
	}
}

// Ping sends a single trace named "oracle-connectivity-test" and reports
// whether the API accepted it.
func (t *LangfuseTracer) Ping(ctx context.Context) error {
	event := ingestionEvent{
		ID:        uuid.NewString(),
		Type:      "trace-create",
		Timestamp: t.timestamp(),
		Body: traceBody{
			ID:   "oracle-ping-" + uuid.NewString(),
			Name: "oracle-connectivity-test",
		},
	}

	result, err := t.client.send(ctx, []ingestionEvent{event})
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("ping event rejected: %s", result.Errors[0].Message)
	}
	return nil
}

// BaseURL returns the configured Langfuse base URL.
func (t *LangfuseTracer) BaseURL() string {
	return t.config.BaseURL
}

func (t *LangfuseTracer) enqueue(eventType string, body interface{}) {
	evt := ingestionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: t.timestamp(),
		Body:      body,
	}

	t.mu.Lock()
	if t.stopped || len(t.pending) >= maxBuffered {
		stopped := t.stopped
		t.mu.Unlock()
		t.dropped.Add(1)
		if !stopped {
			t.logger.Printf("Warning: Langfuse event buffer full, dropping event: %s", eventType)
		}
		return
	}
	t.pending = append(t.pending, evt)
	full := len(t.pending) >= maxBatchSize
	t.mu.Unlock()

	if full {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
}

func (t *LangfuseTracer) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
		case <-t.kick:
		}

		ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
		if err := t.sendPending(ctx); err != nil {
			t.logger.Printf("Warning: Langfuse batch send failed: %v", err)
		}
		cancel()
	}
}

// sendPending takes the buffer and sends it in batches of maxBatchSize.
// A failed batch is counted as rejected and not retried again.
func (t *LangfuseTracer) sendPending(ctx context.Context) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	events := t.pending
	t.pending = nil
	t.mu.Unlock()

	var firstErr error
	for len(events) > 0 {
		n := len(events)
		if n > maxBatchSize {
			n = maxBatchSize
		}
		batch := events[:n]
		events = events[n:]

		result, err := t.client.sendWithRetry(ctx, batch)
		if err != nil {
			t.rejected.Add(int64(len(batch)))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, e := range result.Errors {
			t.logger.Printf("Warning: Langfuse: event %s rejected (status=%d): %s", e.ID, e.Status, e.Message)
		}
		t.rejected.Add(int64(len(result.Errors)))
		t.sent.Add(int64(len(batch) - len(result.Errors)))
	}
	return firstErr
}
