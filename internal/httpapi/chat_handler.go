package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/logging"
	"chat_gateway/internal/middleware"
	"chat_gateway/internal/proxy"
)

// handleChat is the caller-facing forwarding entry point.
//
// Flow:
//  1. Validate method
//  2. Derive caller identity (middleware)
//  3. Decode JSON body and split common fields from pass-through params
//  4. Forward through the proxy engine
//  5. Map typed engine errors to HTTP statuses
//  6. Enqueue audit record
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := uuid.New().String()

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()

	callerID, ok := middleware.GetCallerID(ctx)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "caller identity missing")
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := requestFromPayload(payload, callerID, d.DefaultProvider)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := d.Engine.Forward(ctx, req)
	providerMs := time.Since(start).Milliseconds()

	rec := &logging.Record{
		Timestamp:  time.Now(),
		RequestID:  reqID,
		CallerID:   callerID,
		Provider:   req.ProviderID,
		Model:      req.Model,
		ProviderMs: providerMs,
		GatewayMs:  time.Since(start).Milliseconds(),
	}

	if err != nil {
		var pErr *proxy.Error
		if errors.As(err, &pErr) {
			rec.Status = pErr.HTTPStatus()
			rec.Error = pErr.Error()
			_ = d.Sink.Enqueue(ctx, rec)
			writeProxyError(w, pErr)
			return
		}
		rec.Status = http.StatusInternalServerError
		rec.Error = err.Error()
		_ = d.Sink.Enqueue(ctx, rec)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rec.Status = resp.StatusCode
	_ = d.Sink.Enqueue(ctx, rec)

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// requestFromPayload splits the decoded body into the common request shape.
// Unknown top-level fields ride along as pass-through params.
func requestFromPayload(payload map[string]any, callerID, defaultProvider string) (*proxy.Request, error) {
	providerID, _ := payload["provider"].(string)
	if providerID == "" {
		providerID = defaultProvider
	}
	if providerID == "" {
		return nil, fmt.Errorf("missing 'provider' field")
	}

	model, _ := payload["model"].(string)

	rawMessages, ok := payload["messages"]
	if !ok {
		return nil, fmt.Errorf("missing 'messages' field")
	}
	encoded, err := json.Marshal(rawMessages)
	if err != nil {
		return nil, fmt.Errorf("invalid 'messages' field")
	}
	var messages []proxy.Message
	if err := json.Unmarshal(encoded, &messages); err != nil {
		return nil, fmt.Errorf("invalid 'messages' field")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("'messages' must not be empty")
	}

	params := make(map[string]any)
	for k, v := range payload {
		switch k {
		case "provider", "model", "messages", "stream":
		default:
			params[k] = v
		}
	}

	return &proxy.Request{
		ProviderID: providerID,
		CallerID:   callerID,
		Model:      model,
		Messages:   messages,
		Params:     params,
	}, nil
}

// writeProxyError renders a typed engine failure. Rate-limit rejections get
// backoff headers; upstream errors relay the provider status and normalized
// body.
func writeProxyError(w http.ResponseWriter, pErr *proxy.Error) {
	if errors.Is(pErr, proxy.ErrRateLimited) {
		seconds := int(pErr.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(pErr.ResetAt.Unix(), 10))
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if errors.Is(pErr, proxy.ErrUpstream) && len(pErr.UpstreamBody) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(pErr.HTTPStatus())
		_, _ = w.Write(pErr.UpstreamBody)
		return
	}

	writeJSONError(w, pErr.HTTPStatus(), pErr.Error())
}

// writeJSONError writes an OpenAI-compatible error response
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    statusCode,
		},
	}
	_ = json.NewEncoder(w).Encode(errorResp)
}
