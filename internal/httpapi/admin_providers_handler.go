package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"chat_gateway/internal/credentials"
	"chat_gateway/internal/models"
	"chat_gateway/internal/registry"
	"chat_gateway/internal/storage"
	"chat_gateway/internal/utils"
)

// ProviderRequest is the admin payload for creating or updating a provider.
type ProviderRequest struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	Type            string   `json:"type"`
	BaseEndpoint    string   `json:"base_endpoint"`
	DefaultModel    string   `json:"default_model"`
	SupportedModels []string `json:"supported_models,omitempty"`
	RateWindowMs    int64    `json:"rate_window_ms,omitempty"`
	RateMaxRequests int      `json:"rate_max_requests,omitempty"`
	Active          bool     `json:"active"`
}

// CredentialRequest carries a plaintext key to encrypt and store. The key is
// never echoed back.
type CredentialRequest struct {
	APIKey string `json:"api_key"`
}

var validProviderTypes = map[string]bool{
	string(models.ProviderTypeOpenAI):     true,
	string(models.ProviderTypeGroq):       true,
	string(models.ProviderTypeGemini):     true,
	string(models.ProviderTypeOpenRouter): true,
}

// handleAdminProviders routes /admin/providers (collection).
func (d *Dependencies) handleAdminProviders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		providers, err := d.Registry.List(r.Context())
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list providers")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, providers)
	case http.MethodPost:
		d.upsertProvider(w, r, "")
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAdminProvider routes /admin/providers/{id}[/active|/credential].
func (d *Dependencies) handleAdminProvider(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/providers/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Provider id is required")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		d.handleProviderByID(w, r, id)
	case "active":
		d.handleProviderActive(w, r, id)
	case "credential":
		d.handleProviderCredential(w, r, id)
	default:
		utils.RespondWithError(w, http.StatusNotFound, "Unknown resource")
	}
}

func (d *Dependencies) handleProviderByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		provider, err := d.Registry.Get(r.Context(), id)
		if err != nil {
			respondRegistryError(w, err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, provider)
	case http.MethodPut:
		d.upsertProvider(w, r, id)
	case http.MethodDelete:
		// Deleting a provider also drops its credential; the in-use
		// check consults the injected assignment predicate.
		if err := d.Registry.Remove(r.Context(), id, d.ProviderInUse); err != nil {
			respondRegistryError(w, err)
			return
		}
		if err := d.Credentials.Remove(r.Context(), id); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Provider removed but credential cleanup failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (d *Dependencies) upsertProvider(w http.ResponseWriter, r *http.Request, pathID string) {
	var req ProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if pathID != "" {
		req.ID = pathID
	}
	if !validProviderTypes[req.Type] {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider type")
		return
	}

	provider := &models.Provider{
		ID:              req.ID,
		DisplayName:     req.DisplayName,
		ProviderType:    models.ProviderType(req.Type),
		BaseEndpoint:    req.BaseEndpoint,
		DefaultModel:    req.DefaultModel,
		SupportedModels: req.SupportedModels,
		RateLimit: models.RateLimitPolicy{
			Window:      time.Duration(req.RateWindowMs) * time.Millisecond,
			MaxRequests: req.RateMaxRequests,
		},
		Active: req.Active,
	}

	saved, err := d.Registry.Upsert(r.Context(), provider)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, saved)
}

func (d *Dependencies) handleProviderActive(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	provider, err := d.Registry.SetActive(r.Context(), id, req.Active)
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, provider)
}

func (d *Dependencies) handleProviderCredential(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPut:
		var req CredentialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}

		credID, err := d.Credentials.Store(r.Context(), id, req.APIKey)
		if err != nil {
			if errors.Is(err, credentials.ErrInvalidInput) {
				utils.RespondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to store credential")
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"credential_id": credID.String()})
	case http.MethodDelete:
		if err := d.Credentials.Remove(r.Context(), id); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to remove credential")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func respondRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrProviderNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
	case errors.Is(err, registry.ErrProviderInUse):
		utils.RespondWithError(w, http.StatusConflict, "Provider is still assigned and cannot be removed")
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
