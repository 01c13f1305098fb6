package ratelimit

import (
	"sync"
	"time"
)

// Policy configures a sliding window: at most MaxRequests admissions per key
// within any trailing Window.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

// Valid reports whether the policy is usable for admission checks.
func (p Policy) Valid() bool {
	return p.Window > 0 && p.MaxRequests > 0
}

// Result is the outcome of one admission attempt. When Allowed is false,
// ResetAt/RetryAfter tell the caller when the oldest counted request leaves
// the window.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter admits or rejects request attempts per key.
type Limiter interface {
	Admit(key string, policy Policy) Result
}

// window holds the request timestamps for one key. Each window has its own
// mutex so admissions against different keys do not contend; the limiter's
// outer lock is only taken to look up or create the window itself.
type window struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastSeen time.Time
}

// SlidingWindowLimiter is an in-process sliding window log limiter.
//
// The prune/check/append sequence for a key runs under that key's lock as
// one critical section, so concurrent admissions are linearized: with one
// slot left, exactly one of two racing callers is admitted.
type SlidingWindowLimiter struct {
	mu      sync.RWMutex
	windows map[string]*window

	// now is replaceable in tests
	now func() time.Time
}

// NewSlidingWindowLimiter creates an empty limiter
func NewSlidingWindowLimiter() *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *SlidingWindowLimiter) getWindow(key string) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[key]; ok {
		return w
	}
	w = &window{}
	l.windows[key] = w
	return w
}

// Admit records one attempt for key if the policy allows it. Admission and
// recording are a single atomic step; an admission is never undone by a
// later downstream failure (the quota counts attempts, not successes).
func (l *SlidingWindowLimiter) Admit(key string, policy Policy) Result {
	if policy.MaxRequests <= 0 || policy.Window <= 0 {
		// No policy configured means no limit.
		return Result{Allowed: true, Remaining: -1}
	}

	w := l.getWindow(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.lastSeen = now

	// Prune entries that have left the trailing window.
	cutoff := now.Add(-policy.Window)
	keep := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			break
		}
		keep++
	}
	if keep > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[keep:]...)
	}

	if len(w.stamps) >= policy.MaxRequests {
		resetAt := w.stamps[0].Add(policy.Window)
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	w.stamps = append(w.stamps, now)
	return Result{
		Allowed:   true,
		Remaining: policy.MaxRequests - len(w.stamps),
		ResetAt:   w.stamps[0].Add(policy.Window),
	}
}

// PruneIdle evicts windows that have seen no traffic for at least maxIdle.
// A missing window is equivalent to an empty one, so eviction never affects
// correctness. Returns the number of evicted windows.
func (l *SlidingWindowLimiter) PruneIdle(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		idle := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *SlidingWindowLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}

// Key composes the limiter key for a (provider, caller) pair.
func Key(providerID, callerID string) string {
	return providerID + ":" + callerID
}
