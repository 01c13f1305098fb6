package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Hints carries rate-limit information a provider reported in its response
// headers. Hints are observability data only; they never override local
// admission decisions.
type Hints struct {
	Limit      int           `json:"limit,omitempty"`
	Remaining  int           `json:"remaining,omitempty"`
	ResetAfter time.Duration `json:"reset_after,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	ObservedAt time.Time     `json:"observed_at"`
}

// Header names vary per vendor; each list is tried in order and absence of
// all of them simply yields no hint.
var (
	limitHeaders     = []string{"X-Ratelimit-Limit-Requests", "X-Ratelimit-Limit"}
	remainingHeaders = []string{"X-Ratelimit-Remaining-Requests", "X-Ratelimit-Remaining"}
	resetHeaders     = []string{"X-Ratelimit-Reset-Requests", "X-Ratelimit-Reset"}
)

// HintsFromHeaders extracts rate-limit hints from provider response headers.
// Returns nil when no recognized header is present.
func HintsFromHeaders(h http.Header) *Hints {
	hints := &Hints{Limit: -1, Remaining: -1}
	found := false

	for _, name := range limitHeaders {
		if v, ok := parseIntHeader(h, name); ok {
			hints.Limit = v
			found = true
			break
		}
	}
	for _, name := range remainingHeaders {
		if v, ok := parseIntHeader(h, name); ok {
			hints.Remaining = v
			found = true
			break
		}
	}
	for _, name := range resetHeaders {
		if d, ok := parseDurationHeader(h, name); ok {
			hints.ResetAfter = d
			found = true
			break
		}
	}
	if d, ok := parseDurationHeader(h, "Retry-After"); ok {
		hints.RetryAfter = d
		found = true
	}

	if !found {
		return nil
	}
	hints.ObservedAt = time.Now()
	return hints
}

func parseIntHeader(h http.Header, name string) (int, bool) {
	raw := h.Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// parseDurationHeader accepts plain seconds ("30"), Go-style durations as
// OpenAI emits them ("1s", "6m20s", "120ms"), or a fractional second count.
func parseDurationHeader(h http.Header, name string) (time.Duration, bool) {
	raw := h.Get(name)
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 0 {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}

// HintStore keeps the most recent hints per provider for read-only exposure.
type HintStore struct {
	mu    sync.RWMutex
	hints map[string]Hints
}

// NewHintStore creates an empty hint store
func NewHintStore() *HintStore {
	return &HintStore{hints: make(map[string]Hints)}
}

// Record stores hints for a provider; nil hints are ignored.
func (s *HintStore) Record(providerID string, hints *Hints) {
	if hints == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints[providerID] = *hints
}

// Get returns the last observed hints for a provider, if any.
func (s *HintStore) Get(providerID string) (Hints, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hints[providerID]
	return h, ok
}

// Snapshot returns a copy of all stored hints keyed by provider id.
func (s *HintStore) Snapshot() map[string]Hints {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Hints, len(s.hints))
	for k, v := range s.hints {
		out[k] = v
	}
	return out
}
