package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHintsFromHeaders(t *testing.T) {
	t.Run("returns nil when no recognized header is present", func(t *testing.T) {
		h := http.Header{}
		h.Set("Content-Type", "application/json")

		assert.Nil(t, HintsFromHeaders(h))
	})

	t.Run("parses openai style request headers", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Ratelimit-Limit-Requests", "500")
		h.Set("X-Ratelimit-Remaining-Requests", "499")
		h.Set("X-Ratelimit-Reset-Requests", "6m20s")

		hints := HintsFromHeaders(h)
		require.NotNil(t, hints)
		assert.Equal(t, 500, hints.Limit)
		assert.Equal(t, 499, hints.Remaining)
		assert.Equal(t, 6*time.Minute+20*time.Second, hints.ResetAfter)
		assert.False(t, hints.ObservedAt.IsZero())
	})

	t.Run("falls back to generic header names", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Ratelimit-Limit", "60")
		h.Set("X-Ratelimit-Remaining", "12")

		hints := HintsFromHeaders(h)
		require.NotNil(t, hints)
		assert.Equal(t, 60, hints.Limit)
		assert.Equal(t, 12, hints.Remaining)
	})

	t.Run("suffixed headers win over generic ones", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Ratelimit-Remaining-Requests", "7")
		h.Set("X-Ratelimit-Remaining", "9999")

		hints := HintsFromHeaders(h)
		require.NotNil(t, hints)
		assert.Equal(t, 7, hints.Remaining)
	})

	t.Run("parses retry-after as plain seconds", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "30")

		hints := HintsFromHeaders(h)
		require.NotNil(t, hints)
		assert.Equal(t, 30*time.Second, hints.RetryAfter)
	})

	t.Run("parses fractional second reset values", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Ratelimit-Reset", "0.5")

		hints := HintsFromHeaders(h)
		require.NotNil(t, hints)
		assert.Equal(t, 500*time.Millisecond, hints.ResetAfter)
	})

	t.Run("ignores malformed values", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Ratelimit-Limit", "not-a-number")
		h.Set("Retry-After", "soon")

		assert.Nil(t, HintsFromHeaders(h))
	})

	t.Run("missing fields keep the unknown marker", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "5")

		hints := HintsFromHeaders(h)
		require.NotNil(t, hints)
		assert.Equal(t, -1, hints.Limit)
		assert.Equal(t, -1, hints.Remaining)
	})
}

func TestHintStore(t *testing.T) {
	store := NewHintStore()

	_, ok := store.Get("openai")
	assert.False(t, ok)

	// Nil hints must not clobber anything.
	store.Record("openai", nil)
	_, ok = store.Get("openai")
	assert.False(t, ok)

	store.Record("openai", &Hints{Limit: 100, Remaining: 42})
	got, ok := store.Get("openai")
	require.True(t, ok)
	assert.Equal(t, 42, got.Remaining)

	store.Record("groq", &Hints{Limit: 30, Remaining: 1})
	snap := store.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, 100, snap["openai"].Limit)
}
