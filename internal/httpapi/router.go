package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"chat_gateway/internal/config"
	"chat_gateway/internal/credentials"
	"chat_gateway/internal/logging"
	"chat_gateway/internal/metrics"
	"chat_gateway/internal/middleware"
	"chat_gateway/internal/models"
	"chat_gateway/internal/proxy"
	"chat_gateway/internal/ratelimit"
	"chat_gateway/internal/registry"
	"chat_gateway/internal/storage"
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Registry    *registry.Registry
	Credentials *credentials.Store
	Engine      *proxy.Engine
	Metrics     metrics.Metrics
	Sink        logging.Sink

	// ProviderInUse is the externally supplied assignment check consulted
	// before a provider delete. Nil means nothing references providers.
	ProviderInUse registry.InUseFunc

	// DefaultProvider handles requests that name no provider.
	DefaultProvider string

	// CallerLimiter and ProviderLimiter are retained for idle-window GC.
	CallerLimiter   *ratelimit.SlidingWindowLimiter
	ProviderLimiter *ratelimit.SlidingWindowLimiter

	db *storage.DB
}

// NewRouter creates an HTTP router with all dependencies wired up.
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	// Credential encryption. Load already guaranteed the secret exists;
	// key derivation failing anyway is fatal.
	enc, err := credentials.NewEncryptionFromSecret(cfg.MasterSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// Repositories: Postgres when configured, memory otherwise.
	var (
		providerRepo storage.ProviderRepository
		credRepo     storage.CredentialRepository
		db           *storage.DB
	)
	if cfg.Database.URL != "" {
		db, err = storage.NewDB(storage.DBConfig{
			DSN:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		providerRepo = storage.NewCachedProviderRepository(
			storage.NewPostgresProviderRepository(db),
			cfg.Cache.ProviderCacheSize,
			cfg.Cache.ProviderCacheTTL,
		)
		credRepo = storage.NewPostgresCredentialRepository(db)
	} else {
		providerRepo = storage.NewMemoryProviderRepository()
		credRepo = storage.NewMemoryCredentialRepository()
	}

	defaultPolicy := models.RateLimitPolicy{
		Window:      cfg.Proxy.ProviderWindow,
		MaxRequests: cfg.Proxy.ProviderMaxRequests,
	}
	reg := registry.New(providerRepo, defaultPolicy)
	credStore := credentials.NewStore(enc, credRepo, providerRepo)

	// Seed built-in providers and any credentials present in the
	// environment before serving traffic.
	if err := seedProviders(context.Background(), reg, credStore); err != nil {
		return nil, nil, fmt.Errorf("failed to seed providers: %w", err)
	}

	// Audit sink: Redis buffer when configured, otherwise a no-op.
	var sink logging.Sink = logging.NewNoopSink()
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		sink = logging.NewRedisBuffer(client, logging.DefaultRedisBufferConfig())
	}

	prom := metrics.NewPrometheusMetrics()
	callerLimiter := ratelimit.NewSlidingWindowLimiter()
	providerLimiter := ratelimit.NewSlidingWindowLimiter()

	engine, err := proxy.NewEngine(proxy.EngineConfig{
		Registry:        reg,
		Credentials:     credStore,
		CallerLimiter:   callerLimiter,
		ProviderLimiter: providerLimiter,
		CallerPolicy: ratelimit.Policy{
			Window:      cfg.Proxy.CallerWindow,
			MaxRequests: cfg.Proxy.CallerMaxRequests,
		},
		Metrics: prom,
		Timeout: cfg.Proxy.RequestTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize proxy engine: %w", err)
	}

	deps := &Dependencies{
		Registry:        reg,
		Credentials:     credStore,
		Engine:          engine,
		Metrics:         prom,
		Sink:            sink,
		DefaultProvider: cfg.Proxy.DefaultProvider,
		CallerLimiter:   callerLimiter,
		ProviderLimiter: providerLimiter,
		db:              db,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)

	return mux, deps, nil
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config) {
	// Caller-facing proxy endpoint.
	mux.Handle("/v1/chat/completions", middleware.CallerID(http.HandlerFunc(deps.handleChat)))

	// Health check endpoint - public.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Metrics endpoint - public.
	mux.Handle("/metrics", deps.Metrics.HTTPHandler())

	// Admin management endpoints - JWT protected.
	adminJWT := middleware.AdminJWTMiddleware(cfg.JWTSecret)
	mux.Handle("/admin/providers", adminJWT(http.HandlerFunc(deps.handleAdminProviders)))
	mux.Handle("/admin/providers/", adminJWT(http.HandlerFunc(deps.handleAdminProvider)))
	mux.Handle("/admin/ratelimit/hints", adminJWT(http.HandlerFunc(deps.handleRateLimitHints)))
}

// handleRateLimitHints exposes the last provider-reported quota hints.
func (d *Dependencies) handleRateLimitHints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, d.Engine.Hints().Snapshot())
}

// Close releases backend connections.
func (d *Dependencies) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// builtinProviders are registered at startup when absent so a fresh install
// can forward immediately once keys are configured.
var builtinProviders = []models.Provider{
	{
		ID:           "openai",
		DisplayName:  "OpenAI",
		ProviderType: models.ProviderTypeOpenAI,
		BaseEndpoint: "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
		Active:       true,
	},
	{
		ID:           "groq",
		DisplayName:  "Groq",
		ProviderType: models.ProviderTypeGroq,
		BaseEndpoint: "https://api.groq.com/openai/v1",
		DefaultModel: "llama-3.3-70b-versatile",
		Active:       true,
	},
	{
		ID:           "gemini",
		DisplayName:  "Google Gemini",
		ProviderType: models.ProviderTypeGemini,
		BaseEndpoint: "https://generativelanguage.googleapis.com",
		DefaultModel: "gemini-2.0-flash",
		Active:       true,
	},
	{
		ID:           "openrouter",
		DisplayName:  "OpenRouter",
		ProviderType: models.ProviderTypeOpenRouter,
		BaseEndpoint: "https://openrouter.ai/api/v1",
		DefaultModel: "openrouter/auto",
		Active:       true,
	},
}

// credentialEnvVars maps built-in provider ids to the environment variable
// holding their API key.
var credentialEnvVars = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

func seedProviders(ctx context.Context, reg *registry.Registry, creds *credentials.Store) error {
	for _, p := range builtinProviders {
		if _, err := reg.Get(ctx, p.ID); err == nil {
			continue
		}
		provider := p
		if _, err := reg.Upsert(ctx, &provider); err != nil {
			return fmt.Errorf("failed to register provider %s: %w", p.ID, err)
		}
	}

	for providerID, envVar := range credentialEnvVars {
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			continue
		}
		if _, err := creds.Store(ctx, providerID, apiKey); err != nil {
			return fmt.Errorf("failed to store credential for %s: %w", providerID, err)
		}
		logging.Infof("stored credential for provider %s from %s", providerID, envVar)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
