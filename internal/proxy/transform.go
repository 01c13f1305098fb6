package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"chat_gateway/internal/models"
)

// UpstreamRequest is the fully shaped outbound HTTP request for one
// provider. Building it performs no I/O.
type UpstreamRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Transform maps between the common request/response shape and one provider
// type's wire format. Both functions are pure: deterministic for a fixed
// input and free of network access, so each provider mapping is testable in
// isolation.
type Transform struct {
	// BuildRequest shapes the outbound call. apiKey is the decrypted
	// credential for the provider; it only ever lands in the returned
	// headers.
	BuildRequest func(p *models.Provider, req *Request, apiKey string) (*UpstreamRequest, error)

	// ParseResponse normalizes a successful provider response body into
	// the common Completion shape and returns the body to relay to the
	// caller.
	ParseResponse func(body []byte) (*Completion, []byte, error)
}

// transforms is keyed by provider type; ad-hoc per-provider branching in the
// engine is deliberately avoided.
var transforms = map[models.ProviderType]Transform{
	models.ProviderTypeOpenAI: {
		BuildRequest:  buildOpenAIRequest,
		ParseResponse: parseOpenAIResponse,
	},
	models.ProviderTypeGroq: {
		// Groq exposes an OpenAI-compatible surface under its own base
		// endpoint, so the mapping is shared.
		BuildRequest:  buildOpenAIRequest,
		ParseResponse: parseOpenAIResponse,
	},
	models.ProviderTypeOpenRouter: {
		BuildRequest:  buildOpenRouterRequest,
		ParseResponse: parseOpenAIResponse,
	},
	models.ProviderTypeGemini: {
		BuildRequest:  buildGeminiRequest,
		ParseResponse: parseGeminiResponse,
	},
}

// ForType returns the transform registered for a provider type.
func ForType(t models.ProviderType) (Transform, bool) {
	tr, ok := transforms[t]
	return tr, ok
}

// reservedParams are fields of the common shape that pass-through params
// must not override.
var reservedParams = map[string]bool{
	"model":    true,
	"messages": true,
	"stream":   true,
}

func resolveModel(p *models.Provider, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.DefaultModel
	}
	if model == "" {
		return "", fmt.Errorf("no model requested and provider %s has no default model", p.ID)
	}
	if !p.SupportsModel(model) {
		return "", fmt.Errorf("provider %s does not support model %q", p.ID, model)
	}
	return model, nil
}

func endpointURL(p *models.Provider, path string) string {
	return strings.TrimRight(p.BaseEndpoint, "/") + path
}

// buildOpenAIRequest shapes the common request for OpenAI-compatible
// chat/completions endpoints.
func buildOpenAIRequest(p *models.Provider, req *Request, apiKey string) (*UpstreamRequest, error) {
	model, err := resolveModel(p, req)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"model":    model,
		"messages": req.Messages,
	}
	for k, v := range req.Params {
		if !reservedParams[k] {
			payload[k] = v
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+apiKey)

	return &UpstreamRequest{
		Method: http.MethodPost,
		URL:    endpointURL(p, "/chat/completions"),
		Header: header,
		Body:   body,
	}, nil
}

// buildOpenRouterRequest is the OpenAI mapping plus the attribution headers
// OpenRouter expects from proxies.
func buildOpenRouterRequest(p *models.Provider, req *Request, apiKey string) (*UpstreamRequest, error) {
	up, err := buildOpenAIRequest(p, req, apiKey)
	if err != nil {
		return nil, err
	}
	up.Header.Set("HTTP-Referer", "https://chat-gateway.local")
	up.Header.Set("X-Title", "chat_gateway")
	return up, nil
}

// parseOpenAIResponse validates the provider body against the common shape
// and relays it unchanged.
func parseOpenAIResponse(body []byte) (*Completion, []byte, error) {
	var completion Completion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, nil, fmt.Errorf("provider response has no choices")
	}
	return &completion, body, nil
}

// Gemini wire shapes. The generateContent endpoint differs structurally from
// chat/completions: turns live in contents[].parts[], the assistant role is
// called "model", and system prompts ride in a separate systemInstruction.
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// geminiParamNames maps common generation params to their generationConfig
// field names.
var geminiParamNames = map[string]string{
	"temperature": "temperature",
	"top_p":       "topP",
	"max_tokens":  "maxOutputTokens",
	"stop":        "stopSequences",
}

func buildGeminiRequest(p *models.Provider, req *Request, apiKey string) (*UpstreamRequest, error) {
	model, err := resolveModel(p, req)
	if err != nil {
		return nil, err
	}

	payload := geminiRequest{}
	var systemParts []geminiPart
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, geminiPart{Text: m.Content})
		case "assistant":
			payload.Contents = append(payload.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: m.Content}},
			})
		default:
			payload.Contents = append(payload.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}
	if len(systemParts) > 0 {
		payload.SystemInstruction = &geminiContent{Parts: systemParts}
	}
	if len(payload.Contents) == 0 {
		return nil, fmt.Errorf("gemini request needs at least one non-system message")
	}

	for k, v := range req.Params {
		if name, ok := geminiParamNames[k]; ok {
			if payload.GenerationConfig == nil {
				payload.GenerationConfig = make(map[string]any)
			}
			payload.GenerationConfig[name] = v
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Goog-Api-Key", apiKey)

	return &UpstreamRequest{
		Method: http.MethodPost,
		URL:    endpointURL(p, "/v1beta/models/"+model+":generateContent"),
		Header: header,
		Body:   body,
	}, nil
}

// parseGeminiResponse folds candidates/usageMetadata back into the common
// choices/usage shape.
func parseGeminiResponse(body []byte) (*Completion, []byte, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, nil, fmt.Errorf("provider response has no candidates")
	}

	completion := &Completion{
		Usage: &Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
	}
	for i, cand := range resp.Candidates {
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
		completion.Choices = append(completion.Choices, Choice{
			Index:        i,
			Message:      Message{Role: "assistant", Content: text.String()},
			FinishReason: strings.ToLower(cand.FinishReason),
		})
	}

	normalized, err := json.Marshal(completion)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal normalized response: %w", err)
	}
	return completion, normalized, nil
}
