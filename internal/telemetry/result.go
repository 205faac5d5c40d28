package telemetry

import (
	"context"
	"errors"
	"fmt"
)

// State tags the outcome of a fetch.
type State string

const (
	StateOK     State = "ok"
	StateEmpty  State = "empty"
	StateFailed State = "failed"
)

// ErrorKind classifies a failed fetch.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
	KindCanceled  ErrorKind = "canceled"
)

// FetchError describes why an upstream call failed.
type FetchError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s: upstream returned status %d", e.Endpoint, e.StatusCode)
	case KindCanceled:
		return fmt.Sprintf("%s: request canceled", e.Endpoint)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s error: %v", e.Endpoint, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s error", e.Endpoint, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// Reason is a short, user-facing description of the failure.
func (e *FetchError) Reason() string {
	switch e.Kind {
	case KindTransport:
		return "telemetry service unreachable"
	case KindStatus:
		return fmt.Sprintf("telemetry service returned status %d", e.StatusCode)
	case KindDecode:
		return "telemetry service returned an unexpected response"
	case KindCanceled:
		return "request canceled"
	default:
		return "telemetry request failed"
	}
}

// IsCanceled reports whether err is a canceled fetch or a context cancellation.
func IsCanceled(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == KindCanceled {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Result carries fetched items with an explicit success/empty/failure tag so
// callers never have to guess what an empty slice means.
type Result[T any] struct {
	State State
	Items []T
	Err   error
}

// OK wraps items, tagging empty slices as StateEmpty.
func OK[T any](items []T) Result[T] {
	if len(items) == 0 {
		return Result[T]{State: StateEmpty, Items: []T{}}
	}
	return Result[T]{State: StateOK, Items: items}
}

// Failed wraps err as a failed result with no items.
func Failed[T any](err error) Result[T] {
	return Result[T]{State: StateFailed, Items: []T{}, Err: err}
}

// Failed reports whether the fetch failed.
func (r Result[T]) Failed() bool {
	return r.State == StateFailed
}

// Reason describes a failure for display, or returns "" for a success.
func (r Result[T]) Reason() string {
	if r.State != StateFailed {
		return ""
	}
	var fe *FetchError
	if errors.As(r.Err, &fe) {
		return fe.Reason()
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return "request failed"
}

// Map converts the items of r, preserving its state and error.
func Map[T, U any](r Result[T], fn func([]T) []U) Result[U] {
	if r.Failed() {
		return Failed[U](r.Err)
	}
	return OK(fn(r.Items))
}
