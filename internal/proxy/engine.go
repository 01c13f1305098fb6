// Package proxy implements the credential-protecting, rate-limited
// forwarding engine between callers and upstream LLM providers.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chat_gateway/internal/credentials"
	"chat_gateway/internal/logging"
	"chat_gateway/internal/metrics"
	"chat_gateway/internal/models"
	"chat_gateway/internal/ratelimit"
	"chat_gateway/internal/registry"
	"chat_gateway/internal/storage"
)

const (
	// DefaultTimeout bounds one outbound provider call.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a provider response is read.
	maxResponseBytes = 10 << 20
)

// EngineConfig wires the engine's collaborators. Registry and Credentials
// are required; everything else gets a sensible default.
type EngineConfig struct {
	Registry    *registry.Registry
	Credentials *credentials.Store

	// CallerLimiter guards the API surface per caller with CallerPolicy.
	CallerLimiter ratelimit.Limiter
	CallerPolicy  ratelimit.Policy

	// ProviderLimiter guards each (provider, caller) pair with the
	// provider's own policy.
	ProviderLimiter ratelimit.Limiter

	Hints   *ratelimit.HintStore
	Metrics metrics.Metrics

	HTTPClient *http.Client
	Timeout    time.Duration
}

// Engine orchestrates one forwarded request: provider lookup, admission,
// credential decryption, transform, outbound call, normalization. It never
// retries and never falls back to another provider; retrying elsewhere is a
// caller-visible decision.
type Engine struct {
	registry        *registry.Registry
	creds           *credentials.Store
	callerLimiter   ratelimit.Limiter
	callerPolicy    ratelimit.Policy
	providerLimiter ratelimit.Limiter
	hints           *ratelimit.HintStore
	metrics         metrics.Metrics
	client          *http.Client
	timeout         time.Duration
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	e := &Engine{
		registry:        cfg.Registry,
		creds:           cfg.Credentials,
		callerLimiter:   cfg.CallerLimiter,
		callerPolicy:    cfg.CallerPolicy,
		providerLimiter: cfg.ProviderLimiter,
		hints:           cfg.Hints,
		metrics:         cfg.Metrics,
		client:          cfg.HTTPClient,
		timeout:         cfg.Timeout,
	}
	if e.callerLimiter == nil {
		e.callerLimiter = ratelimit.NewSlidingWindowLimiter()
	}
	if e.providerLimiter == nil {
		e.providerLimiter = ratelimit.NewSlidingWindowLimiter()
	}
	if e.hints == nil {
		e.hints = ratelimit.NewHintStore()
	}
	if e.metrics == nil {
		e.metrics = metrics.NewNoopMetrics()
	}
	if e.client == nil {
		e.client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	return e, nil
}

// Hints exposes the provider-reported rate limit hints for observability.
func (e *Engine) Hints() *ratelimit.HintStore {
	return e.hints
}

// Forward proxies one request to its provider.
//
// Flow:
//  1. Resolve provider via registry; reject unknown or inactive
//  2. Admit via the caller limiter, then the (provider, caller) limiter
//  3. Decrypt the provider credential
//  4. Transform into the provider wire format
//  5. Issue the outbound call with a bounded timeout
//  6. Normalize the response or classify the failure
func (e *Engine) Forward(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, wrapError(ErrInternal, err, "invalid request")
	}

	// 1. Provider lookup. Unknown providers never touch the limiter or
	// the credential store.
	provider, err := e.registry.Get(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			return nil, newError(ErrProviderNotFound, "%s", req.ProviderID)
		}
		return nil, wrapError(ErrInternal, err, "provider lookup failed")
	}
	if !provider.Active {
		return nil, newError(ErrProviderInactive, "%s", provider.ID)
	}

	// 2. Admission. Check-and-record is atomic inside the limiter; once
	// recorded, the attempt counts even if the upstream call fails later.
	if e.callerPolicy.Valid() {
		res := e.callerLimiter.Admit(req.CallerID, e.callerPolicy)
		if !res.Allowed {
			e.metrics.RecordRateLimited("caller")
			return nil, rateLimitError(res)
		}
	}
	if policy := providerPolicy(provider); policy.Valid() {
		res := e.providerLimiter.Admit(ratelimit.Key(provider.ID, req.CallerID), policy)
		if !res.Allowed {
			e.metrics.RecordRateLimited("provider")
			return nil, rateLimitError(res)
		}
	}

	// 3. Credential. The plaintext lives in this stack frame only.
	apiKey, err := e.creds.DecryptForProvider(ctx, provider.ID)
	if err != nil {
		switch {
		case errors.Is(err, credentials.ErrNotFound):
			return nil, newError(ErrCredentialMissing, "provider %s is not configured", provider.ID)
		case errors.Is(err, credentials.ErrDecryptionFailed):
			return nil, newError(ErrDecryptionFailed, "provider %s", provider.ID)
		default:
			return nil, wrapError(ErrInternal, err, "credential lookup failed")
		}
	}

	// 4. Transform (pure, no I/O).
	transform, ok := ForType(provider.ProviderType)
	if !ok {
		return nil, newError(ErrInternal, "no transform for provider type %q", provider.ProviderType)
	}
	upstream, err := transform.BuildRequest(provider, req, apiKey)
	if err != nil {
		return nil, wrapError(ErrInternal, err, "failed to shape provider request")
	}

	// 5. Outbound call.
	return e.call(ctx, provider, transform, upstream)
}

func (e *Engine) call(ctx context.Context, provider *models.Provider, transform Transform, upstream *UpstreamRequest) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, upstream.Method, upstream.URL, bytes.NewReader(upstream.Body))
	if err != nil {
		return nil, wrapError(ErrInternal, err, "failed to build outbound request")
	}
	httpReq.Header = upstream.Header

	start := time.Now()
	httpResp, err := e.client.Do(httpReq)
	latency := time.Since(start)

	if err != nil {
		// The caller going away is not a provider fault.
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, wrapError(ErrInternal, ctx.Err(), "request canceled by caller")
		}
		e.metrics.RecordRequest(provider.ID, 0)
		logging.Warningf("provider %s unreachable after %s: %v", provider.ID, latency.Round(time.Millisecond), err)
		return nil, wrapError(ErrProviderUnreachable, err, "provider %s", provider.ID)
	}
	defer httpResp.Body.Close()

	e.metrics.ObserveUpstreamLatency(provider.ID, latency)
	e.metrics.RecordRequest(provider.ID, httpResp.StatusCode)

	// Record provider-reported quota hints; they inform observability but
	// never admission.
	hints := ratelimit.HintsFromHeaders(httpResp.Header)
	e.hints.Record(provider.ID, hints)

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, wrapError(ErrProviderUnreachable, err, "failed reading response from provider %s", provider.ID)
	}

	// 6. Upstream errors pass through status with a normalized body.
	if httpResp.StatusCode >= 400 {
		return nil, &Error{
			Kind:           ErrUpstream,
			Message:        fmt.Sprintf("provider %s returned status %d", provider.ID, httpResp.StatusCode),
			UpstreamStatus: httpResp.StatusCode,
			UpstreamBody:   normalizeErrorBody(provider.ID, httpResp.StatusCode, body),
		}
	}

	completion, relay, err := transform.ParseResponse(body)
	if err != nil {
		return nil, wrapError(ErrInternal, err, "provider %s", provider.ID)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       relay,
		Header:     header,
		Hints:      hints,
		Usage:      completion.Usage,
	}, nil
}

func providerPolicy(p *models.Provider) ratelimit.Policy {
	return ratelimit.Policy{
		Window:      p.RateLimit.Window,
		MaxRequests: p.RateLimit.MaxRequests,
	}
}

func rateLimitError(res ratelimit.Result) *Error {
	return &Error{
		Kind:       ErrRateLimited,
		Message:    fmt.Sprintf("retry after %s", res.RetryAfter.Round(time.Millisecond)),
		RetryAfter: res.RetryAfter,
		ResetAt:    res.ResetAt,
	}
}

// normalizeErrorBody reshapes an upstream error payload into the common
// error envelope, preserving the provider's message when it is parseable.
func normalizeErrorBody(providerID string, status int, body []byte) []byte {
	message := ""

	var openAIErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &openAIErr); err == nil && openAIErr.Error.Message != "" {
		message = openAIErr.Error.Message
	}
	if message == "" {
		message = fmt.Sprintf("provider returned status %d", status)
	}

	out, err := json.Marshal(map[string]any{
		"error": map[string]any{
			"message":  message,
			"type":     "upstream_error",
			"provider": providerID,
			"status":   status,
		},
	})
	if err != nil {
		return []byte(`{"error":{"message":"upstream error"}}`)
	}
	return out
}
