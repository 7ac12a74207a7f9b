package llm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClientError is the base error type for LLM call failures.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ProviderError is a failure reported by (or attributed to) a provider.
type ProviderError struct {
	ClientError
	Provider   string
	StatusCode int
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthError struct{ ProviderError }

type RateLimitError struct {
	ProviderError
	RetryAfter time.Duration // 0 when the provider gave no hint
}

type ServerError struct{ ProviderError }

type ContextLengthError struct{ ProviderError }

// Non-provider errors.

type TimeoutError struct{ ClientError }

type CanceledError struct{ ClientError }

type ConfigError struct{ ClientError }

// IsRetryable reports whether the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *AuthError:
		return false
	case *ContextLengthError:
		return false
	case *ConfigError:
		return false
	case *CanceledError:
		return false
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *TimeoutError:
		return true
	case *ProviderError:
		return e.Retryable
	default:
		return false
	}
}

// IsAuth reports whether the error means the credentials are bad.
func IsAuth(err error) bool {
	_, ok := err.(*AuthError)
	return ok
}

// RetryAfterHint returns the provider's retry-after hint, or 0.
func RetryAfterHint(err error) time.Duration {
	if rl, ok := err.(*RateLimitError); ok {
		return rl.RetryAfter
	}
	return 0
}

// ClassifyError maps a raw backend error onto the typed taxonomy. gollm
// surfaces provider failures as opaque strings, so classification sniffs the
// message the same way a status-code switch would.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	base := ProviderError{
		ClientError: ClientError{Message: msg, Cause: err},
		Provider:    provider,
	}
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid key") ||
		strings.Contains(lower, "authentication"):
		base.StatusCode = 401
		return &AuthError{ProviderError: base}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		base.StatusCode = 429
		base.Retryable = true
		return &RateLimitError{ProviderError: base, RetryAfter: parseRetryAfter(lower)}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens") ||
		strings.Contains(lower, "413"):
		base.StatusCode = 413
		return &ContextLengthError{ProviderError: base}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504") ||
		strings.Contains(lower, "internal server") || strings.Contains(lower, "overloaded"):
		base.StatusCode = 500
		base.Retryable = true
		return &ServerError{ProviderError: base}
	case strings.Contains(lower, "context canceled"):
		return &CanceledError{ClientError: ClientError{Message: msg, Cause: err}}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &TimeoutError{ClientError: ClientError{Message: msg, Cause: err}}
	default:
		base.Retryable = true
		return &base
	}
}

// parseRetryAfter pulls a "retry after N" hint out of an error message.
func parseRetryAfter(lower string) time.Duration {
	idx := strings.Index(lower, "retry after ")
	if idx < 0 {
		return 0
	}
	rest := lower[idx+len("retry after "):]
	end := 0
	for end < len(rest) && (rest[end] >= '0' && rest[end] <= '9') {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Second
}
