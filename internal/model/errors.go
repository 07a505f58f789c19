package model

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrAuthRequired marks a 401/expired-token response. The host shell owns
// credential refresh; the engine only surfaces the condition.
var ErrAuthRequired = eris.New("authentication required")

// ErrNoResults marks an export attempted without a completed job. The
// adapter returns it before any network call is made.
var ErrNoResults = eris.New("no completed results to export")

// ValidationError is a locally rejected input; it never reaches the backend.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientCreditsError is a local pre-check failure: the selection cost
// exceeds the last fetched balance.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// ConsentDeclinedError is returned when the user declines the disclaimer
// for a consent-gated provider. Submission aborts with no side effects.
type ConsentDeclinedError struct {
	Providers []string
}

func (e *ConsentDeclinedError) Error() string {
	return fmt.Sprintf("consent declined for providers %v", e.Providers)
}

// TransportError wraps a network or timeout failure on a single request.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError carries a backend-reported failure: a non-2xx response or
// a per-item error from a bulk result. Detail is surfaced to the user
// verbatim. Status is 0 for per-item errors embedded in a 2xx body.
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	switch {
	case e.Status == 0:
		return "backend error: " + e.Detail
	case e.Detail == "":
		return fmt.Sprintf("backend error (status %d)", e.Status)
	default:
		return fmt.Sprintf("backend error (status %d): %s", e.Status, e.Detail)
	}
}

// IsValidation reports whether err is a local validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransport reports whether err is a network-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsBackend reports whether err carries a backend-provided detail, and
// returns it when present.
func IsBackend(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
