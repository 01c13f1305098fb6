package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validTestProvider() *Provider {
	return &Provider{
		ID:           "openai",
		DisplayName:  "OpenAI",
		ProviderType: ProviderTypeOpenAI,
		BaseEndpoint: "https://api.openai.com/v1",
		Active:       true,
	}
}

func TestProvider_Validate(t *testing.T) {
	t.Run("valid provider", func(t *testing.T) {
		assert.NoError(t, validTestProvider().Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		p := validTestProvider()
		p.ID = ""
		assert.Error(t, p.Validate())
	})

	t.Run("missing display name", func(t *testing.T) {
		p := validTestProvider()
		p.DisplayName = ""
		assert.Error(t, p.Validate())
	})

	t.Run("relative endpoint", func(t *testing.T) {
		p := validTestProvider()
		p.BaseEndpoint = "/v1"
		assert.Error(t, p.Validate())
	})

	t.Run("empty endpoint", func(t *testing.T) {
		p := validTestProvider()
		p.BaseEndpoint = ""
		assert.Error(t, p.Validate())
	})

	t.Run("half-configured rate limit", func(t *testing.T) {
		p := validTestProvider()
		p.RateLimit = RateLimitPolicy{Window: time.Minute}
		assert.Error(t, p.Validate())

		p.RateLimit = RateLimitPolicy{MaxRequests: 10}
		assert.Error(t, p.Validate())
	})

	t.Run("unset rate limit is allowed", func(t *testing.T) {
		p := validTestProvider()
		p.RateLimit = RateLimitPolicy{}
		assert.NoError(t, p.Validate())
	})
}

func TestProvider_SupportsModel(t *testing.T) {
	p := validTestProvider()

	// Empty set accepts anything.
	assert.True(t, p.SupportsModel("gpt-4o"))

	p.SupportedModels = []string{"gpt-4o", "gpt-4o-mini"}
	assert.True(t, p.SupportsModel("gpt-4o-mini"))
	assert.False(t, p.SupportsModel("gpt-3.5-turbo"))
}

func TestRateLimitPolicy_Valid(t *testing.T) {
	assert.True(t, RateLimitPolicy{Window: time.Minute, MaxRequests: 10}.Valid())
	assert.False(t, RateLimitPolicy{}.Valid())
	assert.False(t, RateLimitPolicy{Window: time.Minute}.Valid())
	assert.False(t, RateLimitPolicy{Window: -time.Minute, MaxRequests: 10}.Valid())
	assert.False(t, RateLimitPolicy{Window: time.Minute, MaxRequests: -1}.Valid())
}
