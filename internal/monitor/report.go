package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andywolf/oracle/internal/classify"
	"github.com/andywolf/oracle/internal/generate"
	"github.com/andywolf/oracle/internal/social"
)

// FailureKind classifies a non-fatal failure inside a pass.
type FailureKind string

const (
	FetchFailed           FailureKind = "fetch_failed"
	GenerationUnavailable FailureKind = "generation_unavailable"
	GenerationMalformed   FailureKind = "generation_malformed"
	PublishRejected       FailureKind = "publish_rejected"
	PublishUnavailable    FailureKind = "publish_unavailable"
	UnexpectedFailure     FailureKind = "unexpected_failure"
	// PassCancelled marks work cut short because the pass context ended.
	PassCancelled FailureKind = "cancelled"
)

// Failure is one thing that went wrong during a pass. Failures are
// collected on the Report; none of them stop the pass.
type Failure struct {
	Kind          FailureKind
	Source        string
	InteractionID string
	Err           error
}

func (f Failure) Error() string {
	target := f.Source
	if f.InteractionID != "" {
		target = f.InteractionID
	}
	if target == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s (%s): %v", f.Kind, target, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// SourceResult is the outcome of fetching one source.
type SourceResult struct {
	Source       string
	Interactions []social.Interaction
	Err          error
}

// Completed reports whether the fetch finished without error.
func (r SourceResult) Completed() bool {
	return r.Err == nil
}

// Decision is the classifier's verdict on one interaction. Reason explains
// decisions made before classification (own post).
type Decision struct {
	Interaction social.Interaction
	Action      classify.Action
	Reason      string
}

// Published records content the pass put on the platform.
type Published struct {
	InteractionID string // empty for autonomous posts
	PostID        social.PostID
	Content       string
	Template      string
}

// Report summarizes one pass.
type Report struct {
	PassID     string
	IssuedAt   time.Time
	Duration   time.Duration
	Sources    []SourceResult
	Decisions  []Decision
	Replies    []Published
	Autonomous *Published
	Failures   []Failure

	Duplicates int
	Throttled  int
	Panicked   bool
	Cancelled  bool
}

// Status is "completed", "cancelled" or "failed" (panic).
func (r *Report) Status() string {
	switch {
	case r.Panicked:
		return "failed"
	case r.Cancelled:
		return "cancelled"
	default:
		return "completed"
	}
}

// Responded counts the Respond decisions.
func (r *Report) Responded() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Action.Kind == classify.Respond {
			n++
		}
	}
	return n
}

// FailuresOf returns the failures of the given kind.
func (r *Report) FailuresOf(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func (r *Report) addFailure(f Failure) {
	r.Failures = append(r.Failures, f)
}

// generationFailureKind maps a dispatcher error to a FailureKind.
func generationFailureKind(err error) FailureKind {
	switch {
	case errors.Is(err, context.Canceled):
		return PassCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return GenerationUnavailable
	case errors.Is(err, generate.ErrGenerationUnavailable):
		return GenerationUnavailable
	case errors.Is(err, generate.ErrGenerationMalformed):
		return GenerationMalformed
	default:
		return UnexpectedFailure
	}
}

// publishFailureKind maps a publisher error to a FailureKind.
func publishFailureKind(err error) FailureKind {
	switch {
	case errors.Is(err, context.Canceled):
		return PassCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return PublishUnavailable
	case errors.Is(err, social.ErrPublishRejected):
		return PublishRejected
	case errors.Is(err, social.ErrPublishUnavailable):
		return PublishUnavailable
	default:
		return UnexpectedFailure
	}
}
