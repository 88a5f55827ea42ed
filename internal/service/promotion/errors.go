package promotion

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCode   = errors.New("promo code is empty")
	ErrInvalid     = errors.New("invalid or expired promo code")
	ErrUnavailable = errors.New("could not reach promotion service, try again")
	ErrRateLimited = errors.New("too many promo code attempts")
)

// InvalidError carries the upstream reason for a rejected code.
type InvalidError struct {
	Code   string
	Reason string
}

func (e *InvalidError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("promo code %q is invalid or expired", e.Code)
	}
	return fmt.Sprintf("promo code %q is invalid or expired: %s", e.Code, e.Reason)
}

func (e *InvalidError) Unwrap() error {
	return ErrInvalid
}
