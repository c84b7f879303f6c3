package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, 5xx, network.
	ErrTransient = errors.New("transient provider error")
	// ErrRejected marks failures a retry cannot fix: bad input, policy refusals.
	ErrRejected = errors.New("provider rejected the request")
)

// Error is a classified provider failure.
type Error struct {
	Provider   string
	StatusCode int
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func Transient(provider string, err error) error {
	return &Error{Provider: provider, Kind: ErrTransient, Err: err}
}

func Rejected(provider string, err error) error {
	return &Error{Provider: provider, Kind: ErrRejected, Err: err}
}

// FromStatus classifies an HTTP response status. 429 and 5xx are transient,
// every other 4xx is a rejection.
func FromStatus(provider string, code int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(code))
	}
	kind := ErrRejected
	if code == http.StatusTooManyRequests || code >= 500 || code == http.StatusRequestTimeout {
		kind = ErrTransient
	}
	return &Error{Provider: provider, StatusCode: code, Kind: kind, Err: err}
}

// Classify wraps an unclassified SDK error. Network and deadline errors are
// transient; anything already classified is returned as is.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrRejected) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(provider, err)
	}
	return err
}

// IsRejected reports whether err must not be retried.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
