package classify

import (
	"math/rand"
	"sync"
	"time"
)

// GateConfig parameterizes the autonomous-post gate.
type GateConfig struct {
	// Probability is the chance an otherwise-eligible pass posts, in [0, 1].
	Probability float64
	// MinInterval is the minimum time between autonomous posts.
	MinInterval time.Duration
	// DailyLimit caps autonomous posts per UTC day. Zero means unlimited.
	DailyLimit int
}

// GateState is the bookkeeping the gate reads. It lives in the persisted
// monitor state.
type GateState struct {
	LastPost time.Time
	Day      string
	Count    int
}

// DayKey formats t as the UTC day used for the daily limit.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Record returns the state after one autonomous post at now.
func (s GateState) Record(now time.Time) GateState {
	day := DayKey(now)
	count := s.Count
	if s.Day != day {
		count = 0
	}
	return GateState{LastPost: now, Day: day, Count: count + 1}
}

// Gate decides whether an autonomous post is due. It does not look at
// interaction content.
type Gate struct {
	cfg GateConfig

	mu   sync.Mutex
	rand func() float64
	now  func() time.Time
}

// NewGate creates a gate with the process clock and a seeded source.
func NewGate(cfg GateConfig) *Gate {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Gate{cfg: cfg, rand: r.Float64, now: time.Now}
}

// SetRand replaces the randomness source (for testing).
func (g *Gate) SetRand(fn func() float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rand = fn
}

// SetClock replaces the clock (for testing).
func (g *Gate) SetClock(fn func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = fn
}

// Now returns the gate's current time.
func (g *Gate) Now() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now()
}

// ShouldPost reports whether an autonomous post should be made now.
func (g *Gate) ShouldPost(s GateState) bool {
	if g == nil || g.cfg.Probability <= 0 {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.cfg.MinInterval > 0 && !s.LastPost.IsZero() && now.Sub(s.LastPost) < g.cfg.MinInterval {
		return false
	}
	if g.cfg.DailyLimit > 0 && s.Day == DayKey(now) && s.Count >= g.cfg.DailyLimit {
		return false
	}
	if g.cfg.Probability >= 1 {
		return true
	}
	return g.rand() < g.cfg.Probability
}
