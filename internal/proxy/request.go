package proxy

import (
	"fmt"
	"net/http"

	"chat_gateway/internal/ratelimit"
)

// Message is one turn of the common chat shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the caller-facing request shape the engine accepts for every
// provider. Params carries optional pass-through generation parameters
// (temperature, max_tokens, ...) that each transform maps to its wire format.
type Request struct {
	ProviderID string
	CallerID   string
	Model      string
	Messages   []Message
	Params     map[string]any
}

// Validate checks the minimal shape requirements before forwarding.
func (r *Request) Validate() error {
	if r.ProviderID == "" {
		return fmt.Errorf("provider id is required")
	}
	if r.CallerID == "" {
		return fmt.Errorf("caller id is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("at least one message is required")
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return fmt.Errorf("message %d has no role", i)
		}
	}
	return nil
}

// Usage is the normalized token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion alternative in the normalized response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Completion is the common response body shape returned to callers
// regardless of which provider served the request.
type Completion struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Response is the engine's result for one forwarded request.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header

	// Hints are the provider-reported rate limit hints extracted from the
	// response, if any.
	Hints *ratelimit.Hints

	Usage *Usage
}
