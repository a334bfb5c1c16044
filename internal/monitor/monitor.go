// Package monitor runs the persona's monitoring passes: fetch every source,
// classify, reply, maybe post once, and advance the read cursors.
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andywolf/oracle/internal/activity"
	"github.com/andywolf/oracle/internal/classify"
	"github.com/andywolf/oracle/internal/cloud/gcp"
	"github.com/andywolf/oracle/internal/generate"
	"github.com/andywolf/oracle/internal/observability"
	"github.com/andywolf/oracle/internal/social"
	"github.com/andywolf/oracle/internal/state"
)

// DefaultInitialLookback is how far back the first pass reads.
const DefaultInitialLookback = time.Hour

// saveTimeout bounds the state save after a pass, which runs even when the
// pass context was cancelled.
const saveTimeout = 10 * time.Second

// Generator produces reply and autonomous content.
type Generator interface {
	Respond(ctx context.Context, in social.Interaction) (generate.Content, error)
	Autonomous(ctx context.Context) (generate.Content, error)
}

// Gate decides whether this pass may publish an autonomous post.
type Gate interface {
	ShouldPost(s classify.GateState) bool
}

// Throttle limits replies per author.
type Throttle interface {
	Allow(author string) bool
}

// Config wires a Monitor's collaborators.
type Config struct {
	Sources    []social.Source
	Classifier Classifier
	Generator  Generator
	Publisher  social.Publisher

	Gate     Gate     // nil disables autonomous posts
	Throttle Throttle // nil disables throttling
	Recorder activity.Recorder
	Tracer   observability.Tracer

	Logger      *log.Logger
	CloudLogger gcp.LoggerInterface

	// Handle is the persona's own account; its posts are never answered.
	Handle    string
	Persona   string
	SessionID string

	InitialLookback time.Duration
}

// Monitor runs monitoring passes. It holds no cross-pass state of its own:
// everything that must survive a pass is in the returned state.State.
type Monitor struct {
	sources    []social.Source
	classifier Classifier
	generator  Generator
	publisher  social.Publisher
	gate       Gate
	throttle   Throttle
	recorder   activity.Recorder
	tracer     observability.Tracer

	logger      *log.Logger
	cloudLogger gcp.LoggerInterface

	handle    string
	persona   string
	sessionID string
	lookback  time.Duration

	now   func() time.Time
	newID func() string
}

// New creates a Monitor from cfg.
func New(cfg Config) (*Monitor, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("monitor requires a classifier")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("monitor requires a generator")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("monitor requires a publisher")
	}

	m := &Monitor{
		sources:     append([]social.Source(nil), cfg.Sources...),
		classifier:  cfg.Classifier,
		generator:   cfg.Generator,
		publisher:   cfg.Publisher,
		gate:        cfg.Gate,
		throttle:    cfg.Throttle,
		recorder:    cfg.Recorder,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger,
		cloudLogger: cfg.CloudLogger,
		handle:      cfg.Handle,
		persona:     cfg.Persona,
		sessionID:   cfg.SessionID,
		lookback:    cfg.InitialLookback,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if m.recorder == nil {
		m.recorder = activity.Discard{}
	}
	if m.tracer == nil {
		m.tracer = observability.NoOpTracer{}
	}
	if m.logger == nil {
		m.logger = log.New(os.Stdout, "[monitor] ", log.LstdFlags)
	}
	if m.lookback <= 0 {
		m.lookback = DefaultInitialLookback
	}
	return m, nil
}

// SetClock replaces the time source (tests).
func (m *Monitor) SetClock(fn func() time.Time) {
	if fn != nil {
		m.now = fn
	}
}

// SetIDFunc replaces the pass ID generator (tests).
func (m *Monitor) SetIDFunc(fn func() string) {
	if fn != nil {
		m.newID = fn
	}
}

// Sources returns the IDs of the configured sources in evaluation order.
func (m *Monitor) Sources() []string {
	ids := make([]string, len(m.sources))
	for i, s := range m.sources {
		ids[i] = s.ID()
	}
	return ids
}

// fetchPanic carries a panic out of a fetch goroutine.
type fetchPanic struct {
	source string
	value  interface{}
	stack  []byte
}

func (p *fetchPanic) Error() string {
	return fmt.Sprintf("panic fetching %s: %v", p.source, p.value)
}

// RunPass executes exactly one bounded pass starting from prev and returns
// the state for the next pass. It never returns an error: failures are on
// the Report. A panic ends the pass without advancing any cursor, and a
// cancelled context ends it at the next step boundary, likewise without
// advancing. Autonomous-post bookkeeping recorded before either is kept.
func (m *Monitor) RunPass(ctx context.Context, prev state.State) (next state.State, report *Report) {
	start := m.now()
	if prev.IsZero() {
		prev = state.Initial(start, m.lookback)
		m.logInfo("First pass: reading from %s", prev.Watermark.UTC().Format(time.RFC3339))
	}

	report = &Report{PassID: m.newID(), IssuedAt: start}
	next = prev.Clone()
	next.Passes++
	if m.cloudLogger != nil {
		m.cloudLogger.SetPass(next.Passes)
	}

	trace := m.tracer.StartTrace(report.PassID, observability.TraceOptions{
		Name:      "monitor-pass",
		Persona:   m.persona,
		SessionID: m.sessionID,
	})

	defer func() {
		if r := recover(); r != nil {
			m.recordPanic(report, r)
		}
		report.Duration = m.now().Sub(start)
		m.finish(trace, report)
	}()

	results := m.fetch(ctx, trace, prev, start, report)
	if ctx.Err() != nil {
		report.Cancelled = true
		return next, report
	}

	decisions, duplicates := Plan(m.classifier, m.handle, results)
	report.Decisions = decisions
	report.Duplicates = duplicates

	if !m.respond(ctx, trace, report) {
		report.Cancelled = true
		return next, report
	}

	if ctx.Err() != nil {
		report.Cancelled = true
		return next, report
	}
	m.autonomous(ctx, trace, &next, report)
	if ctx.Err() != nil {
		report.Cancelled = true
		return next, report
	}

	return Advance(next, results, start), report
}

// fetch queries every source concurrently from its own cursor. All
// fetches settle before it returns; results are in source order.
func (m *Monitor) fetch(ctx context.Context, trace observability.TraceContext, prev state.State, issuedAt time.Time, report *Report) []SourceResult {
	span := m.tracer.StartSpan(trace, "fetch", observability.SpanOptions{
		Metadata: map[string]string{"sources": fmt.Sprintf("%d", len(m.sources))},
	})
	started := m.now()

	results := make([]SourceResult, len(m.sources))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, src := range m.sources {
		i, src := i, src
		results[i].Source = src.ID()
		since := prev.Cursor(src.ID())
		eg.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = &fetchPanic{source: src.ID(), value: r, stack: debug.Stack()}
				}
			}()
			items, err := src.Fetch(egCtx, since)
			if err != nil {
				results[i].Err = &social.FetchError{Source: src.ID(), Err: err}
				return nil
			}
			if items == nil {
				items = []social.Interaction{}
			}
			results[i].Interactions = items
			return nil
		})
	}
	_ = eg.Wait()

	report.Sources = results
	status := "completed"
	for _, res := range results {
		if p, ok := res.Err.(*fetchPanic); ok {
			m.tracer.EndSpan(span, "error", m.now().Sub(started).Milliseconds())
			panic(p)
		}
		if res.Err != nil {
			status = "partial"
			report.addFailure(Failure{Kind: FetchFailed, Source: res.Source, Err: res.Err})
			m.logWarning("%v", res.Err)
			m.record(activity.Record{
				Timestamp: issuedAt,
				PassID:    report.PassID,
				Type:      activity.RecordFailure,
				Source:    res.Source,
				Reason:    string(FetchFailed),
				Error:     res.Err.Error(),
			})
			continue
		}
		m.logInfo("Fetched %d interactions from %s", len(res.Interactions), res.Source)
	}
	m.tracer.EndSpan(span, status, m.now().Sub(started).Milliseconds())
	return results
}

// respond answers every Respond decision in order. It returns false if the
// context was cancelled before all decisions were handled.
func (m *Monitor) respond(ctx context.Context, trace observability.TraceContext, report *Report) bool {
	span := m.tracer.StartSpan(trace, "respond", observability.SpanOptions{
		Metadata: map[string]string{"decisions": fmt.Sprintf("%d", len(report.Decisions))},
	})
	started := m.now()
	spanCtx := observability.ContextWithSpan(ctx, span)

	status := "completed"
	defer func() {
		m.tracer.EndSpan(span, status, m.now().Sub(started).Milliseconds())
	}()

	for _, d := range report.Decisions {
		if ctx.Err() != nil {
			status = "cancelled"
			return false
		}

		in := d.Interaction
		if d.Action.Kind != classify.Respond {
			reason := d.Reason
			if reason == "" {
				reason = "no rule matched"
			}
			m.record(activity.Record{
				Timestamp:     m.now(),
				PassID:        report.PassID,
				Type:          activity.RecordSkip,
				Source:        in.Source,
				InteractionID: in.ID,
				Author:        in.Author,
				Reason:        reason,
			})
			continue
		}

		if m.throttle != nil && !m.throttle.Allow(in.Author) {
			report.Throttled++
			m.logInfo("Throttled reply to @%s (%s)", in.Author, in.ID)
			m.tracer.RecordSkipped(span, "respond", "throttled @"+in.Author)
			m.record(activity.Record{
				Timestamp:     m.now(),
				PassID:        report.PassID,
				Type:          activity.RecordSkip,
				Source:        in.Source,
				InteractionID: in.ID,
				Author:        in.Author,
				Rule:          d.Action.Rule,
				Reason:        "throttled",
			})
			continue
		}

		if !m.reply(spanCtx, d, report) {
			status = "partial"
		}
	}
	return true
}

// reply generates and publishes one reply. Failures are recorded and the
// pass moves on.
func (m *Monitor) reply(ctx context.Context, d Decision, report *Report) bool {
	in := d.Interaction
	base := activity.Record{
		PassID:        report.PassID,
		Source:        in.Source,
		InteractionID: in.ID,
		Author:        in.Author,
		Rule:          d.Action.Rule,
	}

	content, err := m.generator.Respond(ctx, in)
	if err != nil {
		m.fail(report, base, Failure{Kind: generationFailureKind(err), Source: in.Source, InteractionID: in.ID, Err: err})
		return false
	}
	base.Template = content.Metadata["template"]

	postID, err := m.publisher.Reply(ctx, content.Content, d.Action.TargetID)
	if err != nil {
		base.Content = content.Content
		m.fail(report, base, Failure{Kind: publishFailureKind(err), Source: in.Source, InteractionID: in.ID, Err: err})
		return false
	}

	report.Replies = append(report.Replies, Published{
		InteractionID: in.ID,
		PostID:        postID,
		Content:       content.Content,
		Template:      base.Template,
	})
	m.logInfo("Replied to @%s (%s) via rule %s", in.Author, in.ID, d.Action.Rule)

	base.Timestamp = m.now()
	base.Type = activity.RecordReply
	base.PostID = string(postID)
	base.Content = content.Content
	m.record(base)
	return true
}

// autonomous evaluates the gate once and publishes at most one post,
// recording the gate bookkeeping in next as soon as the post succeeds.
func (m *Monitor) autonomous(ctx context.Context, trace observability.TraceContext, next *state.State, report *Report) {
	span := m.tracer.StartSpan(trace, "autonomous", observability.SpanOptions{})
	started := m.now()
	status := "completed"
	defer func() {
		m.tracer.EndSpan(span, status, m.now().Sub(started).Milliseconds())
	}()

	gs := classify.GateState{
		LastPost: next.LastAutonomousPost,
		Day:      next.AutonomousDay,
		Count:    next.AutonomousCount,
	}
	if m.gate == nil || !m.gate.ShouldPost(gs) {
		status = "skipped"
		m.tracer.RecordSkipped(span, "autonomous", "gate closed")
		return
	}

	base := activity.Record{PassID: report.PassID}

	content, err := m.generator.Autonomous(observability.ContextWithSpan(ctx, span))
	if err != nil {
		status = "error"
		m.fail(report, base, Failure{Kind: generationFailureKind(err), Err: err})
		return
	}
	base.Template = content.Metadata["template"]

	postID, err := m.publisher.Post(ctx, content.Content)
	if err != nil {
		status = "error"
		base.Content = content.Content
		m.fail(report, base, Failure{Kind: publishFailureKind(err), Err: err})
		return
	}

	now := m.now()
	gs = gs.Record(now)
	next.LastAutonomousPost = gs.LastPost
	next.AutonomousDay = gs.Day
	next.AutonomousCount = gs.Count

	report.Autonomous = &Published{PostID: postID, Content: content.Content, Template: base.Template}
	m.logInfo("Published autonomous post %s (%d today)", postID, gs.Count)

	base.Timestamp = now
	base.Type = activity.RecordPost
	base.PostID = string(postID)
	base.Content = content.Content
	m.record(base)
}

// fail records a generation or publish failure.
func (m *Monitor) fail(report *Report, base activity.Record, f Failure) {
	report.addFailure(f)
	m.logWarning("%v", f)

	base.Timestamp = m.now()
	base.Type = activity.RecordFailure
	base.Reason = string(f.Kind)
	base.Error = f.Err.Error()
	m.record(base)
}

// recordPanic logs a recovered panic with its stack.
func (m *Monitor) recordPanic(report *Report, r interface{}) {
	report.Panicked = true

	var err error
	stack := debug.Stack()
	if p, ok := r.(*fetchPanic); ok {
		err, stack = p, p.stack
	} else {
		err = fmt.Errorf("panic: %v", r)
	}
	report.addFailure(Failure{Kind: UnexpectedFailure, Err: err})
	m.logError("Recovered panic in pass %s: %v\n%s", report.PassID, err, stack)

	m.record(activity.Record{
		Timestamp: m.now(),
		PassID:    report.PassID,
		Type:      activity.RecordFailure,
		Reason:    string(UnexpectedFailure),
		Error:     err.Error(),
	})
}

// finish summarizes the pass in the log, the tracer and the activity log.
func (m *Monitor) finish(trace observability.TraceContext, report *Report) {
	posts := 0
	if report.Autonomous != nil {
		posts = 1
	}

	m.tracer.CompleteTrace(trace, observability.CompleteOptions{
		Status:   report.Status(),
		Replies:  len(report.Replies),
		Posts:    posts,
		Failures: len(report.Failures),
	})

	summary := fmt.Sprintf("Pass %s %s in %s: %d interactions, %d replies, %d posts, %d failures",
		report.PassID, report.Status(), report.Duration.Round(time.Millisecond),
		len(report.Decisions), len(report.Replies), posts, len(report.Failures))
	m.logger.Printf("%s", summary)

	if m.cloudLogger != nil {
		severity := gcp.SeverityInfo
		if report.Panicked {
			severity = gcp.SeverityError
		} else if len(report.Failures) > 0 {
			severity = gcp.SeverityWarning
		}
		m.cloudLogger.Log(severity, summary, map[string]interface{}{
			"pass_id":      report.PassID,
			"status":       report.Status(),
			"interactions": len(report.Decisions),
			"replies":      len(report.Replies),
			"posts":        posts,
			"failures":     len(report.Failures),
			"throttled":    report.Throttled,
			"duplicates":   report.Duplicates,
			"duration_ms":  report.Duration.Milliseconds(),
		})
	}

	m.record(activity.Record{
		Timestamp: m.now(),
		PassID:    report.PassID,
		Type:      activity.RecordPass,
		Reason:    report.Status(),
	})
}

// record appends to the activity log, logging rather than failing.
func (m *Monitor) record(rec activity.Record) {
	if err := m.recorder.Append(rec); err != nil {
		m.logger.Printf("Warning: failed to append activity record: %v", err)
	}
}

// Run loads state from store and runs a pass every interval until ctx is
// cancelled, saving state after each pass.
func (m *Monitor) Run(ctx context.Context, store state.Store, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	st, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	m.logInfo("Monitoring %d sources every %s", len(m.sources), interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, _ = m.passAndSave(ctx, store, st)

		select {
		case <-ctx.Done():
			m.logInfo("Monitor stopped: %v", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce loads state, runs one pass and saves the result.
func (m *Monitor) RunOnce(ctx context.Context, store state.Store) (*Report, error) {
	st, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	_, report := m.passAndSave(ctx, store, st)
	return report, nil
}

func (m *Monitor) passAndSave(ctx context.Context, store state.Store, st state.State) (state.State, *Report) {
	next, report := m.RunPass(ctx, st)
	next.UpdatedAt = m.now().UTC()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := store.Save(saveCtx, next); err != nil {
		m.logError("failed to save state: %v", err)
	}
	return next, report
}

// logInfo logs at INFO level to both local logger and cloud logger
func (m *Monitor) logInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	m.logger.Printf("%s", msg)
	if m.cloudLogger != nil {
		m.cloudLogger.LogInfo(msg)
	}
}

// logWarning logs at WARNING level to both local logger and cloud logger
func (m *Monitor) logWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	m.logger.Printf("Warning: %s", msg)
	if m.cloudLogger != nil {
		m.cloudLogger.LogWarning(msg)
	}
}

// logError logs at ERROR level to both local logger and cloud logger
func (m *Monitor) logError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	m.logger.Printf("Error: %s", msg)
	if m.cloudLogger != nil {
		m.cloudLogger.LogError(msg)
	}
}
