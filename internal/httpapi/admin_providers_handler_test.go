package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat_gateway/internal/models"
)

func doAdmin(deps *Dependencies, method, path, body string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	rec := httptest.NewRecorder()

	if path == "/admin/providers" {
		deps.handleAdminProviders(rec, req)
	} else {
		deps.handleAdminProvider(rec, req)
	}
	return rec
}

const groqBody = `{"id":"groq","display_name":"Groq","type":"groq","base_endpoint":"https://api.groq.com/openai/v1","default_model":"llama-3.3-70b-versatile","active":true}`

func TestAdminProviders_CreateListGet(t *testing.T) {
	deps, _ := newTestDependencies(t, "https://api.openai.com/v1", models.RateLimitPolicy{})

	rec := doAdmin(deps, http.MethodPost, "/admin/providers", groqBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doAdmin(deps, http.MethodGet, "/admin/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Provider
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	rec = doAdmin(deps, http.MethodGet, "/admin/providers/groq", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Provider
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Groq", got.DisplayName)
}

func TestAdminProviders_Validation(t *testing.T) {
	deps, _ := newTestDependencies(t, "https://api.openai.com/v1", models.RateLimitPolicy{})

	t.Run("unknown provider type", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodPost, "/admin/providers",
			`{"id":"x","display_name":"X","type":"anthropic","base_endpoint":"https://example.com"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("relative endpoint", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodPost, "/admin/providers",
			`{"id":"x","display_name":"X","type":"openai","base_endpoint":"/v1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodPost, "/admin/providers", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing id on path", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodGet, "/admin/providers/", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown sub-resource", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodGet, "/admin/providers/openai/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminProviders_UpdateViaPut(t *testing.T) {
	deps, _ := newTestDependencies(t, "https://api.openai.com/v1", models.RateLimitPolicy{})

	body := `{"display_name":"OpenAI Renamed","type":"openai","base_endpoint":"https://api.openai.com/v1","default_model":"gpt-4o","active":true}`
	rec := doAdmin(deps, http.MethodPut, "/admin/providers/openai", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := deps.Registry.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, "OpenAI Renamed", got.DisplayName)
	assert.Equal(t, "gpt-4o", got.DefaultModel)
}

func TestAdminProviders_Active(t *testing.T) {
	deps, _ := newTestDependencies(t, "https://api.openai.com/v1", models.RateLimitPolicy{})

	rec := doAdmin(deps, http.MethodPut, "/admin/providers/openai/active", `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := deps.Registry.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.False(t, got.Active)

	rec = doAdmin(deps, http.MethodPut, "/admin/providers/missing/active", `{"active":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminProviders_Credential(t *testing.T) {
	deps, _ := newTestDependencies(t, "https://api.openai.com/v1", models.RateLimitPolicy{})

	t.Run("store returns credential id, never the key", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodPut, "/admin/providers/openai/credential", `{"api_key":"sk-rotated"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["credential_id"])
		assert.NotContains(t, rec.Body.String(), "sk-rotated")

		plaintext, err := deps.Credentials.DecryptForProvider(context.Background(), "openai")
		require.NoError(t, err)
		assert.Equal(t, "sk-rotated", plaintext)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodPut, "/admin/providers/openai/credential", `{"api_key":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodPut, "/admin/providers/missing/credential", `{"api_key":"sk-x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := doAdmin(deps, http.MethodDelete, "/admin/providers/openai/credential", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestAdminProviders_Delete(t *testing.T) {
	t.Run("deletes provider and credential", func(t *testing.T) {
		deps, _ := newTestDependencies(t, "https://api.openai.com/v1", models.RateLimitPolicy{})

		rec := doAdmin(deps, http.MethodDelete, "/admin/providers/openai", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doAdmin(deps, http.MethodGet, "/admin/providers/openai", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("refuses while referenced", func(t *testing.T) {
		deps, _ := newTestDependencies(t, "https://api.openai.com/v1", models.RateLimitPolicy{})
		deps.ProviderInUse = func(ctx context.Context, providerID string) (bool, error) {
			return true, nil
		}

		rec := doAdmin(deps, http.MethodDelete, "/admin/providers/openai", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("predicate failure surfaces as server error", func(t *testing.T) {
		deps, _ := newTestDependencies(t, "https://api.openai.com/v1", models.RateLimitPolicy{})
		deps.ProviderInUse = func(ctx context.Context, providerID string) (bool, error) {
			return false, fmt.Errorf("assignment store down")
		}

		rec := doAdmin(deps, http.MethodDelete, "/admin/providers/openai", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
