package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat_gateway/internal/auth"
	"chat_gateway/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPPort:     "8080",
		MasterSecret: "test-master-secret",
		JWTSecret:    []byte("test-jwt-secret"),
		Proxy: config.ProxyConfig{
			RequestTimeout:      5 * time.Second,
			DefaultProvider:     "openai",
			CallerWindow:        time.Minute,
			CallerMaxRequests:   120,
			ProviderWindow:      time.Minute,
			ProviderMaxRequests: 60,
		},
	}
}

func TestNewRouter_SeedsBuiltinProviders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	mux, deps, err := NewRouter(testConfig())
	require.NoError(t, err)
	require.NotNil(t, mux)
	defer deps.Close()

	ctx := context.Background()
	for _, id := range []string{"openai", "groq", "gemini", "openrouter"} {
		p, err := deps.Registry.Get(ctx, id)
		require.NoError(t, err, id)
		assert.True(t, p.Active)
		assert.NotEmpty(t, p.BaseEndpoint)
	}

	// The env key was encrypted and stored for openai only.
	plaintext, err := deps.Credentials.DecryptForProvider(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", plaintext)

	_, err = deps.Credentials.DecryptForProvider(ctx, "groq")
	assert.Error(t, err)
}

func TestNewRouter_EmptyMasterSecret(t *testing.T) {
	cfg := testConfig()
	cfg.MasterSecret = ""

	_, _, err := NewRouter(cfg)
	assert.Error(t, err)
}

func TestRouter_PublicEndpoints(t *testing.T) {
	mux, deps, err := NewRouter(testConfig())
	require.NoError(t, err)
	defer deps.Close()

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRouter_AdminRequiresJWT(t *testing.T) {
	mux, deps, err := NewRouter(testConfig())
	require.NoError(t, err)
	defer deps.Close()

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/providers", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/providers", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.GenerateAdminJWT("admin", []byte("test-jwt-secret"), time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin/providers", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rate limit hints", func(t *testing.T) {
		token, err := auth.GenerateAdminJWT("admin", []byte("test-jwt-secret"), time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin/ratelimit/hints", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "{}", rec.Body.String())
	})
}
