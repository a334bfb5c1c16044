package security

import (
	"strings"
	"sync"
	"time"
)

// ReplyThrottle caps how many replies the persona sends to one author within
// a rolling window. It implements a fixed-window token bucket per author and
// is safe for concurrent use.
type ReplyThrottle struct {
	mu         sync.Mutex
	limit      int           // replies per window
	window     time.Duration // window length
	buckets    map[string]*bucket
	maxBuckets int // maximum number of authors to track
	now        func() time.Time
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

// NewReplyThrottle creates a throttle allowing limit replies per author per
// window. A non-positive limit disables throttling.
func NewReplyThrottle(limit int, window time.Duration) *ReplyThrottle {
	return &ReplyThrottle{
		limit:      limit,
		window:     window,
		buckets:    make(map[string]*bucket),
		maxBuckets: 10000,
		now:        time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (rt *ReplyThrottle) SetClock(now func() time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.now = now
}

// Allow reports whether a reply to author may be sent now, consuming one
// token when it may.
func (rt *ReplyThrottle) Allow(author string) bool {
	if rt == nil || rt.limit <= 0 {
		return true
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	key := strings.ToLower(author)
	now := rt.now()

	b, exists := rt.buckets[key]
	if !exists {
		if len(rt.buckets) >= rt.maxBuckets {
			rt.cleanup(now)
		}
		rt.buckets[key] = &bucket{tokens: rt.limit - 1, lastReset: now}
		return true
	}

	if now.Sub(b.lastReset) >= rt.window {
		b.tokens = rt.limit - 1
		b.lastReset = now
		return true
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// Remaining returns the number of replies still allowed to author in the
// current window.
func (rt *ReplyThrottle) Remaining(author string) int {
	if rt == nil || rt.limit <= 0 {
		return -1
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	b, ok := rt.buckets[strings.ToLower(author)]
	if !ok || rt.now().Sub(b.lastReset) >= rt.window {
		return rt.limit
	}
	return b.tokens
}

// cleanup removes buckets that haven't been used recently
func (rt *ReplyThrottle) cleanup(now time.Time) {
	cutoff := now.Add(-2 * rt.window)
	for key, b := range rt.buckets {
		if b.lastReset.Before(cutoff) {
			delete(rt.buckets, key)
		}
	}
}
