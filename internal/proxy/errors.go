package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Failure kinds for a single forwarded request. Every error returned by
// Engine.Forward wraps exactly one of these so route layers can match with
// errors.Is and map to an HTTP status.
var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrProviderInactive    = errors.New("provider is deactivated")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrCredentialMissing   = errors.New("provider has no configured credential")
	ErrDecryptionFailed    = errors.New("provider credential could not be decrypted")
	ErrUpstream            = errors.New("provider returned an error")
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrInternal            = errors.New("internal proxy error")
)

// Error is the unified per-request failure type. Kind is one of the
// sentinels above; Unwrap exposes it for errors.Is.
type Error struct {
	Kind    error
	Message string

	// RetryAfter is set for rate-limit rejections.
	RetryAfter time.Duration
	// ResetAt is when the limiting window frees a slot.
	ResetAt time.Time

	// UpstreamStatus and UpstreamBody are set when the provider itself
	// answered with an error; the status is passed through to the caller.
	UpstreamStatus int
	UpstreamBody   []byte

	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

// HTTPStatus maps the failure to the status the route layer should answer
// with. Upstream errors pass the provider's own status through.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case ErrProviderNotFound:
		return http.StatusNotFound
	case ErrProviderInactive:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrCredentialMissing:
		return http.StatusBadRequest
	case ErrDecryptionFailed:
		return http.StatusInternalServerError
	case ErrUpstream:
		if e.UpstreamStatus >= 400 {
			return e.UpstreamStatus
		}
		return http.StatusBadGateway
	case ErrProviderUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind error, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}
