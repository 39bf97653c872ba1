package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is wrapped by ExternalServiceError when a provider rejects the credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited is wrapped by ExternalServiceError on HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrServerError is wrapped by ExternalServiceError on HTTP 5xx.
	ErrServerError = errors.New("server error")
	// ErrConflict signals a concurrent writer won a version allocation, or a
	// mutation aimed at a superseded version.
	ErrConflict = errors.New("conflict")
	// ErrForbidden is returned when a user acts on a plan they do not own.
	ErrForbidden = errors.New("forbidden")
)

// PreconditionError means required cached or profile data is missing. Nothing partial is produced.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Message
}

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// GenerationError is scoped to a single recipe generation.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing meal, recipe, plan or version.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ExternalServiceError is returned when a generation or retrieval endpoint fails.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnauthorized):
		return fmt.Sprintf("%s authentication failed, check the API key", e.Service)
	case errors.Is(e.Err, ErrRateLimited):
		return fmt.Sprintf("%s rate limit reached, retry later", e.Service)
	case errors.Is(e.Err, ErrServerError):
		return fmt.Sprintf("%s unavailable (status %d)", e.Service, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s request error: status=%d body=%s", e.Service, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	}
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// NewExternalServiceError maps an HTTP status to the matching error class.
func NewExternalServiceError(service string, status int, body string) *ExternalServiceError {
	var kind error
	switch {
	case status == 401 || status == 403:
		kind = ErrUnauthorized
	case status == 429:
		kind = ErrRateLimited
	case status >= 500:
		kind = ErrServerError
	default:
		kind = fmt.Errorf("unexpected status %d", status)
	}
	return &ExternalServiceError{Service: service, StatusCode: status, Body: body, Err: kind}
}
