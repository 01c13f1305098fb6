package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort string

	// MasterSecret keys the credential store. Required: the process
	// refuses to start without it rather than falling back to a built-in
	// default.
	MasterSecret string

	// JWTSecret signs admin tokens. Required.
	JWTSecret []byte

	Database DatabaseConfig
	Redis    RedisConfig
	Proxy    ProxyConfig
	Limiter  LimiterConfig
	Cache    CacheConfig
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory repositories.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis settings for the audit buffer. An empty address
// disables it.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProxyConfig holds forwarding settings.
type ProxyConfig struct {
	RequestTimeout  time.Duration
	DefaultProvider string

	// CallerWindow/CallerMaxRequests is the generic per-caller policy
	// guarding the whole API surface.
	CallerWindow      time.Duration
	CallerMaxRequests int

	// ProviderWindow/ProviderMaxRequests is the default per-(provider,
	// caller) policy used for providers configured without one.
	ProviderWindow      time.Duration
	ProviderMaxRequests int
}

// LimiterConfig controls garbage collection of idle rate-limit windows.
type LimiterConfig struct {
	GCInterval time.Duration
	MaxIdle    time.Duration
}

// CacheConfig holds provider lookup cache settings (Postgres backend only).
type CacheConfig struct {
	ProviderCacheSize int
	ProviderCacheTTL  time.Duration
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables. Missing secrets are
// configuration errors, fatal at startup rather than deferred to request
// time.
func Load() (*Config, error) {
	masterSecret := os.Getenv("MASTER_KEY")
	if masterSecret == "" {
		return nil, fmt.Errorf("MASTER_KEY is required; refusing to start without a credential encryption secret")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required for admin endpoints")
	}

	cfg := &Config{
		HTTPPort:     getEnvString("HTTP_PORT", "8080"),
		MasterSecret: masterSecret,
		JWTSecret:    []byte(jwtSecret),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      os.Getenv("REDIS_ADDRESS"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Proxy: ProxyConfig{
			RequestTimeout:      getEnvDuration("PROXY_REQUEST_TIMEOUT", 30*time.Second),
			DefaultProvider:     getEnvString("PROXY_DEFAULT_PROVIDER", "openai"),
			CallerWindow:        getEnvDuration("RATE_CALLER_WINDOW", time.Minute),
			CallerMaxRequests:   getEnvInt("RATE_CALLER_MAX_REQUESTS", 120),
			ProviderWindow:      getEnvDuration("RATE_PROVIDER_WINDOW", time.Minute),
			ProviderMaxRequests: getEnvInt("RATE_PROVIDER_MAX_REQUESTS", 60),
		},
		Limiter: LimiterConfig{
			GCInterval: getEnvDuration("LIMITER_GC_INTERVAL", 5*time.Minute),
			MaxIdle:    getEnvDuration("LIMITER_MAX_IDLE", 30*time.Minute),
		},
		Cache: CacheConfig{
			ProviderCacheSize: getEnvInt("CACHE_PROVIDER_SIZE", 100),
			ProviderCacheTTL:  getEnvDuration("CACHE_PROVIDER_TTL", time.Minute),
		},
	}

	return cfg, nil
}
