package logging

import (
	"context"
	"time"
)

// Record is one forwarded request's audit entry. It carries caller and
// provider identifiers and timings only; credential plaintext and full
// request bodies stay out of the log stream.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	CallerID   string    `json:"caller_id"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model,omitempty"`
	Status     int       `json:"status"`
	ProviderMs int64     `json:"provider_ms"`
	GatewayMs  int64     `json:"gateway_ms"`
	Error      string    `json:"error,omitempty"`
}

// Sink receives audit records from the gateway.
type Sink interface {
	Enqueue(ctx context.Context, rec *Record) error
}

// NoopSink discards records; used when no Redis buffer is configured.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(ctx context.Context, rec *Record) error {
	return nil
}
