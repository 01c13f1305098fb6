package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredSecrets(t *testing.T) {
	t.Setenv("MASTER_KEY", "test-master-secret")
	t.Setenv("JWT_SECRET", "test-jwt-secret")
}

func TestLoad_RequiresMasterKey(t *testing.T) {
	t.Setenv("MASTER_KEY", "")
	t.Setenv("JWT_SECRET", "test-jwt-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTER_KEY")
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("MASTER_KEY", "test-master-secret")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "test-master-secret", cfg.MasterSecret)
	assert.Equal(t, []byte("test-jwt-secret"), cfg.JWTSecret)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.Address)
	assert.Equal(t, 30*time.Second, cfg.Proxy.RequestTimeout)
	assert.Equal(t, "openai", cfg.Proxy.DefaultProvider)
	assert.Equal(t, time.Minute, cfg.Proxy.CallerWindow)
	assert.Equal(t, 120, cfg.Proxy.CallerMaxRequests)
	assert.Equal(t, 60, cfg.Proxy.ProviderMaxRequests)
	assert.Equal(t, 5*time.Minute, cfg.Limiter.GCInterval)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("PROXY_REQUEST_TIMEOUT", "10s")
	t.Setenv("RATE_CALLER_MAX_REQUESTS", "5")
	t.Setenv("PROXY_DEFAULT_PROVIDER", "groq")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Proxy.RequestTimeout)
	assert.Equal(t, 5, cfg.Proxy.CallerMaxRequests)
	assert.Equal(t, "groq", cfg.Proxy.DefaultProvider)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("PROXY_REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("RATE_CALLER_MAX_REQUESTS", "many")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Proxy.RequestTimeout)
	assert.Equal(t, 120, cfg.Proxy.CallerMaxRequests)
}
