package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies backend failures for retry and reporting decisions.
type Kind string

const (
	KindNone        Kind = ""
	KindValidation  Kind = "validation"
	KindPermission  Kind = "permission"
	KindNotFound    Kind = "not_found"
	KindRateLimit   Kind = "rate_limit"
	KindTimeout     Kind = "timeout"
	KindTransient   Kind = "transient"
	KindCircuitOpen Kind = "circuit_open"
	KindUnknown     Kind = "unknown"
)

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Backend   string
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		if e.Backend != "" {
			return fmt.Sprintf("%s: %v", e.Backend, e.Err)
		}
		return e.Err.Error()
	}
	return fmt.Sprintf("adapter error (backend=%s status=%d)", e.Backend, e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStatusError builds an AdapterError from an HTTP status code.
func NewStatusError(backend string, status int, err error) *AdapterError {
	return &AdapterError{
		Backend:   backend,
		Status:    status,
		Temporary: status == http.StatusTooManyRequests || status >= 500,
		Err:       err,
	}
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Temporary {
			return true
		}
		if adapterErr.Status == 429 || (adapterErr.Status >= 500 && adapterErr.Status <= 599) {
			return true
		}
	}
	return false
}

// circuitOpener is implemented by breaker rejections so this package can
// classify them without importing the resilience layer.
type circuitOpener interface {
	CircuitOpen() bool
}

// KindOf maps an error onto the failure taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var open circuitOpener
	if errors.As(err, &open) && open.CircuitOpen() {
		return KindCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		switch {
		case adapterErr.Status == http.StatusTooManyRequests:
			return KindRateLimit
		case adapterErr.Status == http.StatusUnauthorized || adapterErr.Status == http.StatusForbidden:
			return KindPermission
		case adapterErr.Status == http.StatusNotFound:
			return KindNotFound
		case adapterErr.Status == http.StatusBadRequest || adapterErr.Status == http.StatusUnprocessableEntity:
			return KindValidation
		case adapterErr.Temporary || adapterErr.Status >= 500:
			return KindTransient
		}
	}
	if IsTransient(err) {
		return KindTransient
	}
	return KindUnknown
}
