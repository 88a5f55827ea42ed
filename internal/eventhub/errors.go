package eventhub

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("eventhub: unauthorized")
	ErrNotFound     = errors.New("eventhub: not found")
	ErrUnavailable  = errors.New("eventhub: unavailable")
)

// StatusError is a non-2xx answer that is not covered by a sentinel.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("eventhub: status %d", e.Code)
	}
	return fmt.Sprintf("eventhub: status %d: %s", e.Code, e.Message)
}

// Unwrap lets 5xx answers match ErrUnavailable.
func (e *StatusError) Unwrap() error {
	if e.Code >= 500 {
		return ErrUnavailable
	}
	return nil
}

// ShapeError means a 2xx body did not have the shape the endpoint promises.
type ShapeError struct {
	Endpoint string
	Missing  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("eventhub: %s: response is missing %s", e.Endpoint, e.Missing)
}

func (e *ShapeError) Unwrap() error {
	return ErrUnavailable
}
