package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailReason categorizes why a provider request failed.
type FailReason string

const (
	FailRateLimit      FailReason = "rate_limit"
	FailTimeout        FailReason = "timeout"
	FailServerError    FailReason = "server_error"
	FailInvalidRequest FailReason = "invalid_request"
	FailAuth           FailReason = "auth"
	FailUnknown        FailReason = "unknown"
)

// ProviderError is a structured error from an LLM provider. It carries
// enough context for the recovery logic to decide how to react.
type ProviderError struct {
	Reason   FailReason
	Provider string
	Model    string

	// Status is the HTTP status code, if applicable.
	Status int

	// Code is the provider-specific error code.
	Code string

	Message string
	Cause   error
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps a raw provider failure, classifying it by message.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   FailUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = classifyMessage(cause.Error())
	}
	return err
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatus(status); reason != FailUnknown {
		e.Reason = reason
	}
	return e
}

// WithCode records a provider-specific error code.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	return e
}

func classifyStatus(status int) FailReason {
	switch {
	case status == http.StatusTooManyRequests:
		return FailRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailAuth
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		return FailInvalidRequest
	case status >= 500:
		return FailServerError
	default:
		return FailUnknown
	}
}

func classifyMessage(msg string) FailReason {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429"):
		return FailRateLimit
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded"):
		return FailTimeout
	case strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "internal server") ||
		strings.Contains(msg, "server error") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504"):
		return FailServerError
	case strings.Contains(msg, "invalid_request") ||
		strings.Contains(msg, "invalid request") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "maximum context") ||
		strings.Contains(msg, "too long"):
		return FailInvalidRequest
	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication"):
		return FailAuth
	}
	return FailUnknown
}

// faultClass is how the recovery logic groups provider failures.
type faultClass int

const (
	// faultFatal propagates immediately after a single attempt.
	faultFatal faultClass = iota

	// faultTransient warrants one retry with the request unchanged.
	faultTransient

	// faultContext suggests the accumulated history itself is the problem
	// (too large or malformed) and warrants one retry with trimmed history.
	faultContext
)

func (c faultClass) String() string {
	switch c {
	case faultTransient:
		return "transient"
	case faultContext:
		return "context"
	default:
		return "fatal"
	}
}

// classifyFault maps a turn failure onto a recovery class.
//
// Cancellation and deadline errors are always fatal here: they mean the
// caller gave up, not that the provider hiccuped.
func classifyFault(err error) faultClass {
	if err == nil {
		return faultFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return faultFatal
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Reason {
		case FailRateLimit, FailTimeout, FailServerError:
			return faultTransient
		case FailInvalidRequest:
			return faultContext
		}
		return faultFatal
	}

	switch classifyMessage(err.Error()) {
	case FailRateLimit, FailTimeout, FailServerError:
		return faultTransient
	case FailInvalidRequest:
		return faultContext
	}
	return faultFatal
}
