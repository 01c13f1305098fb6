package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callerFor(t *testing.T, mutate func(r *http.Request)) string {
	t.Helper()

	var got string
	handler := CallerID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetCallerID(r.Context())
		require.True(t, ok)
		got = id
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.RemoteAddr = "192.0.2.10:54321"
	if mutate != nil {
		mutate(req)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestCallerID(t *testing.T) {
	t.Run("hashes bearer token", func(t *testing.T) {
		id := callerFor(t, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer caller-token")
		})

		// The raw token must never appear in the identity.
		assert.NotContains(t, id, "caller-token")
		assert.False(t, strings.HasPrefix(id, "ip:"))
		assert.Len(t, id, 64)
	})

	t.Run("same token yields same identity", func(t *testing.T) {
		mutate := func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer caller-token")
		}
		assert.Equal(t, callerFor(t, mutate), callerFor(t, mutate))
	})

	t.Run("falls back to remote address", func(t *testing.T) {
		id := callerFor(t, nil)
		assert.Equal(t, "ip:192.0.2.10", id)
	})

	t.Run("empty bearer token falls back to remote address", func(t *testing.T) {
		id := callerFor(t, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer ")
		})
		assert.Equal(t, "ip:192.0.2.10", id)
	})
}

func TestGetCallerID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := GetCallerID(req.Context())
	assert.False(t, ok)
}
