// Package state persists the monitor's cross-pass state: read cursors and
// autonomous-post bookkeeping.
package state

import (
	"context"
	"time"
)

// State is the value threaded from one monitoring pass to the next.
type State struct {
	// Watermark is the issue time of the last pass whose fetch step
	// completed.
	Watermark time.Time `json:"watermark"`

	// Cursors holds the per-source lower bound for the next fetch.
	Cursors map[string]time.Time `json:"cursors,omitempty"`

	LastAutonomousPost time.Time `json:"last_autonomous_post,omitempty"`
	AutonomousDay      string    `json:"autonomous_day,omitempty"`
	AutonomousCount    int       `json:"autonomous_count,omitempty"`

	Passes    int       `json:"passes"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Store loads and saves State. Load returns a zero State, not an error, when
// nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// Initial returns the state for a first run: every source starts lookback
// before now.
func Initial(now time.Time, lookback time.Duration) State {
	return State{Watermark: now.Add(-lookback)}
}

// IsZero reports whether s has never been saved.
func (s State) IsZero() bool {
	return s.Watermark.IsZero() && len(s.Cursors) == 0 && s.Passes == 0
}

// Cursor returns the fetch lower bound for source, falling back to the
// watermark for sources seen for the first time.
func (s State) Cursor(source string) time.Time {
	if c, ok := s.Cursors[source]; ok {
		return c
	}
	return s.Watermark
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	if s.Cursors != nil {
		out.Cursors = make(map[string]time.Time, len(s.Cursors))
		for k, v := range s.Cursors {
			out.Cursors[k] = v
		}
	}
	return out
}

// Later returns the later of a and b.
func Later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
