package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
)

// Validator obtains the authoritative verdict for a promo code.
type Validator interface {
	ValidatePromotion(
		ctx context.Context,
		token, code, eventID string,
		subtotal decimal.Decimal,
	) (domain.PromotionValidation, error)
}

// Limiter throttles validation attempts per caller.
type Limiter interface {
	Allow(ctx context.Context, suffix string) (bool, int64, time.Duration, error)
}

type Gate struct {
	validator Validator
	limiter   Limiter
	now       func() time.Time
}

func New(validator Validator, limiter Limiter) *Gate {
	return &Gate{
		validator: validator,
		limiter:   limiter,
		now:       time.Now,
	}
}

// NormalizeCode is the canonical form of user-entered promo code text.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check makes exactly one upstream validation call for code.
//
// Returns:
//   - *domain.Promotion: the promotion to apply.
//   - error: promotion.ErrEmptyCode if code is blank (no call is made).
//   - error: promotion.ErrRateLimited if the caller exhausted its attempts.
//   - error: promotion.ErrInvalid (as *InvalidError) if the code was rejected.
//   - error: promotion.ErrUnavailable if no verdict could be obtained.
func (g *Gate) Check(
	ctx context.Context,
	rateKey, token, code, eventID string,
	subtotal decimal.Decimal,
) (*domain.Promotion, error) {
	const op = "service.promotion.Check"

	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCode)
	}

	if g.limiter != nil && rateKey != "" {
		ok, _, retry, err := g.limiter.Allow(ctx, rateKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w, retry in %s", op, ErrRateLimited, retry.Round(time.Second))
		}
	}

	v, err := g.validator.ValidatePromotion(ctx, token, code, eventID, subtotal)
	if err != nil {
		if errors.Is(err, eventhub.ErrUnauthorized) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	if !v.Valid || v.Promotion == nil {
		return nil, fmt.Errorf("%s: %w", op, &InvalidError{Code: code, Reason: v.Message})
	}

	p := *v.Promotion
	if !p.ValidUntil.IsZero() && g.now().After(p.ValidUntil) {
		return nil, fmt.Errorf("%s: %w", op, &InvalidError{Code: code, Reason: "promotion expired"})
	}

	if p.DiscountPercent < 1 || p.DiscountPercent > 100 {
		return nil, fmt.Errorf("%s: %w", op, &InvalidError{Code: code, Reason: "unsupported discount"})
	}

	if p.Code == "" {
		p.Code = code
	}

	return &p, nil
}
