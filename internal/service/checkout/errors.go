package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrCheckoutNotFound  = errors.New("checkout not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrBusy              = errors.New("checkout is busy")
	ErrInsufficientSeats = errors.New("not enough seats available")
	ErrStaleResponse     = errors.New("promo code changed while it was being validated")
	ErrFreeEvent         = errors.New("promotions do not apply to free events")
	ErrSubmissionFailed  = errors.New("booking failed")
	ErrForbidden         = errors.New("checkout belongs to another user")
)

// SubmissionError is a booking that EventHub did not accept.
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	if e.Reason == "" {
		return "booking failed, please try again"
	}
	return fmt.Sprintf("booking failed: %s", e.Reason)
}

func (e *SubmissionError) Unwrap() error {
	return ErrSubmissionFailed
}
