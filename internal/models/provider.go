package models

import (
	"fmt"
	"net/url"
	"time"
)

// ProviderType enumerates supported upstream provider wire formats.
type ProviderType string

const (
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeGroq       ProviderType = "groq"
	ProviderTypeGemini     ProviderType = "gemini"
	ProviderTypeOpenRouter ProviderType = "openrouter"
)

// RateLimitPolicy describes how many requests a single caller may issue
// against a provider within a rolling window.
type RateLimitPolicy struct {
	Window      time.Duration `json:"window"`
	MaxRequests int           `json:"max_requests"`
}

// Valid reports whether the policy is usable for admission checks.
func (p RateLimitPolicy) Valid() bool {
	return p.Window > 0 && p.MaxRequests > 0
}

// Provider represents an upstream LLM provider configuration.
//
// ID is unique and immutable once created. BaseEndpoint must be an absolute
// URL. Providers are deactivated via Active rather than deleted while any
// external assignment still references them.
type Provider struct {
	ID              string          `db:"id" json:"id"`
	DisplayName     string          `db:"display_name" json:"display_name"`
	ProviderType    ProviderType    `db:"provider_type" json:"provider_type"`
	BaseEndpoint    string          `db:"base_endpoint" json:"base_endpoint"`
	DefaultModel    string          `db:"default_model" json:"default_model"`
	SupportedModels []string        `db:"-" json:"supported_models,omitempty"`
	RateLimit       RateLimitPolicy `db:"-" json:"rate_limit"`
	Active          bool            `db:"active" json:"active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// SupportsModel reports whether the provider accepts the given model name.
// An empty SupportedModels set means any model is accepted.
func (p *Provider) SupportsModel(model string) bool {
	if len(p.SupportedModels) == 0 {
		return true
	}
	for _, m := range p.SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}

// Validate checks the invariants required before a provider may be stored.
func (p *Provider) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if p.DisplayName == "" {
		return fmt.Errorf("provider display name is required")
	}
	u, err := url.Parse(p.BaseEndpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("provider base endpoint must be an absolute URL, got %q", p.BaseEndpoint)
	}
	if p.RateLimit != (RateLimitPolicy{}) && !p.RateLimit.Valid() {
		return fmt.Errorf("provider rate limit policy must have a positive window and max requests")
	}
	return nil
}
