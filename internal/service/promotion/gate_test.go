package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
)

type fakeValidator struct {
	calls  int
	code   string
	result domain.PromotionValidation
	err    error
}

func (f *fakeValidator) ValidatePromotion(
	_ context.Context,
	_, code, _ string,
	_ decimal.Decimal,
) (domain.PromotionValidation, error) {
	f.calls++
	f.code = code
	return f.result, f.err
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (f fakeLimiter) Allow(context.Context, string) (bool, int64, time.Duration, error) {
	return f.allow, 1, 30 * time.Second, f.err
}

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newGate(v Validator, l Limiter) *Gate {
	g := New(v, l)
	g.now = func() time.Time { return now }
	return g
}

func validResult(percent int, until time.Time) domain.PromotionValidation {
	return domain.PromotionValidation{
		Valid: true,
		Promotion: &domain.Promotion{
			ID:              "p-1",
			DiscountPercent: percent,
			ValidUntil:      until,
		},
	}
}

func TestGate_EmptyCodeMakesNoCall(t *testing.T) {
	v := &fakeValidator{}
	g := newGate(v, nil)

	_, err := g.Check(context.Background(), "", "tok", "   ", "ev-1", decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, ErrEmptyCode)
	assert.Zero(t, v.calls)
}

func TestGate_Valid(t *testing.T) {
	v := &fakeValidator{result: validResult(20, now.Add(time.Hour))}
	g := newGate(v, fakeLimiter{allow: true})

	p, err := g.Check(context.Background(), "u-1", "tok", " save20 ", "ev-1", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, "SAVE20", v.code)
	assert.Equal(t, "SAVE20", p.Code)
	assert.Equal(t, 20, p.DiscountPercent)
}

func TestGate_Invalid(t *testing.T) {
	cases := map[string]domain.PromotionValidation{
		"rejected":        {Valid: false, Message: "usage limit reached"},
		"expired":         validResult(20, now.Add(-time.Minute)),
		"zero percent":    validResult(0, now.Add(time.Hour)),
		"valid but empty": {Valid: true},
	}

	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			g := newGate(&fakeValidator{result: res}, nil)

			_, err := g.Check(context.Background(), "", "tok", "CODE", "ev-1", decimal.NewFromInt(1000))
			assert.ErrorIs(t, err, ErrInvalid)
			assert.NotErrorIs(t, err, ErrUnavailable)

			var ie *InvalidError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, "CODE", ie.Code)
		})
	}
}

func TestGate_Unavailable(t *testing.T) {
	v := &fakeValidator{err: eventhub.ErrUnavailable}
	g := newGate(v, nil)

	_, err := g.Check(context.Background(), "", "tok", "CODE", "ev-1", decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestGate_UnauthorizedPassesThrough(t *testing.T) {
	g := newGate(&fakeValidator{err: eventhub.ErrUnauthorized}, nil)

	_, err := g.Check(context.Background(), "", "tok", "CODE", "ev-1", decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, eventhub.ErrUnauthorized)
}

func TestGate_RateLimited(t *testing.T) {
	v := &fakeValidator{result: validResult(10, now.Add(time.Hour))}
	g := newGate(v, fakeLimiter{allow: false})

	_, err := g.Check(context.Background(), "u-1", "tok", "CODE", "ev-1", decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Zero(t, v.calls)
}

func TestGate_LimiterFailureIsUnavailable(t *testing.T) {
	g := newGate(&fakeValidator{}, fakeLimiter{err: errors.New("redis down")})

	_, err := g.Check(context.Background(), "u-1", "tok", "CODE", "ev-1", decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, ErrUnavailable)
}
