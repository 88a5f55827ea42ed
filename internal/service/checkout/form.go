package checkout

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/pricing"
	"github.com/kirinyoku/eventhub-checkout/internal/service/promotion"
)

// MaxTicketsPerBooking caps a single booking regardless of availability.
const MaxTicketsPerBooking = 10

// AppliedPromotion is a promotion together with the code text it was
// validated for.
type AppliedPromotion struct {
	Code      string           `json:"code"`
	Promotion domain.Promotion `json:"promotion"`
}

// Form is the state of one booking form. Every setter clamps its input, so
// a Form never holds an out-of-range quantity or points value, and Quote is
// always recomputed from the current fields.
type Form struct {
	EventID         string            `json:"eventId"`
	EventTitle      string            `json:"eventTitle"`
	UnitPrice       decimal.Decimal   `json:"unitPrice"`
	IsFree          bool              `json:"isFree"`
	AvailableSeats  int               `json:"availableSeats"`
	PointsAvailable int64             `json:"pointsAvailable"`
	Quantity        int               `json:"quantity"`
	PointsToUse     int64             `json:"pointsToUse"`
	PromoCode       string            `json:"promoCode"`
	Applied         *AppliedPromotion `json:"appliedPromotion,omitempty"`

	// Busy flags are derived from the checkout locks, not stored.
	ValidatingPromo bool `json:"-"`
	Submitting      bool `json:"-"`
}

func NewForm(ev domain.Event, pointsAvailable int64) *Form {
	if pointsAvailable < 0 {
		pointsAvailable = 0
	}

	f := &Form{
		EventID:         ev.ID,
		EventTitle:      ev.Title,
		UnitPrice:       ev.UnitPrice(),
		IsFree:          ev.IsFree,
		AvailableSeats:  ev.AvailableSeats,
		PointsAvailable: pointsAvailable,
	}
	f.SetQuantity(1)

	return f
}

// MaxQuantity is min(MaxTicketsPerBooking, AvailableSeats), never below 1.
func (f *Form) MaxQuantity() int {
	upper := min(MaxTicketsPerBooking, f.AvailableSeats)
	if upper < 1 {
		return 1
	}
	return upper
}

func (f *Form) SetQuantity(n int) {
	f.Quantity = max(1, min(n, f.MaxQuantity()))
	f.SetPoints(f.PointsToUse)
}

func (f *Form) Increment() { f.SetQuantity(f.Quantity + 1) }

func (f *Form) Decrement() { f.SetQuantity(f.Quantity - 1) }

func (f *Form) Subtotal() decimal.Decimal {
	return f.UnitPrice.Mul(decimal.NewFromInt(int64(f.Quantity)))
}

// MaxPoints is how many points can be redeemed at the current quantity.
func (f *Form) MaxPoints() int64 {
	if f.IsFree {
		return 0
	}
	return pricing.MaxPoints(f.PointsAvailable, f.Subtotal())
}

func (f *Form) SetPoints(n int64) {
	f.PointsToUse = max(0, min(n, f.MaxPoints()))
}

func (f *Form) UseAllPoints() {
	f.PointsToUse = f.MaxPoints()
}

// SetPromoCode replaces the promo code text. A previously applied promotion
// survives only if the text still equals the code it was validated for.
func (f *Form) SetPromoCode(text string) {
	if f.IsFree {
		f.ClearPromoCode()
		return
	}

	f.PromoCode = promotion.NormalizeCode(text)
	if f.Applied != nil && f.Applied.Code != f.PromoCode {
		f.Applied = nil
	}
}

func (f *Form) ClearPromoCode() {
	f.PromoCode = ""
	f.Applied = nil
}

// BeginPromoValidation marks a validation as in flight and returns the code
// to validate. A blank code clears any applied promotion and returns
// promotion.ErrEmptyCode; nothing should be sent upstream in that case.
func (f *Form) BeginPromoValidation() (string, error) {
	if f.IsFree {
		return "", ErrFreeEvent
	}

	if f.ValidatingPromo || f.Submitting {
		return "", ErrBusy
	}

	if f.PromoCode == "" {
		f.Applied = nil
		return "", promotion.ErrEmptyCode
	}

	f.ValidatingPromo = true

	return f.PromoCode, nil
}

// ResolvePromotion records the outcome of validating code. Outcomes for a
// code that no longer matches the current text are dropped with
// ErrStaleResponse. A rejected code clears the applied promotion; a failed
// call leaves the form as it was.
func (f *Form) ResolvePromotion(code string, p *domain.Promotion, err error) error {
	f.ValidatingPromo = false

	if code != f.PromoCode {
		return ErrStaleResponse
	}

	switch {
	case err == nil && p != nil:
		f.Applied = &AppliedPromotion{Code: code, Promotion: *p}
	case errors.Is(err, promotion.ErrInvalid):
		f.Applied = nil
	}

	return nil
}

// ActivePromotion is the promotion that counts for pricing right now.
func (f *Form) ActivePromotion() *domain.Promotion {
	if f.IsFree || f.Applied == nil || f.Applied.Code != f.PromoCode {
		return nil
	}

	p := f.Applied.Promotion
	return &p
}

func (f *Form) Quote() pricing.Quote {
	return pricing.Calculate(pricing.Input{
		UnitPrice:       f.UnitPrice,
		Quantity:        f.Quantity,
		PointsAvailable: f.PointsAvailable,
		PointsRequested: f.PointsToUse,
		Promotion:       f.ActivePromotion(),
	})
}

// CanSubmit reports why the form cannot be submitted, or nil.
func (f *Form) CanSubmit() error {
	if f.ValidatingPromo || f.Submitting {
		return ErrBusy
	}

	if f.AvailableSeats < f.Quantity {
		return ErrInsufficientSeats
	}

	return nil
}

func (f *Form) BookingRequest() domain.BookingRequest {
	req := domain.BookingRequest{
		EventID:  f.EventID,
		Quantity: f.Quantity,
	}

	if f.PointsToUse > 0 {
		pts := f.PointsToUse
		req.PointsUsed = &pts
	}

	// a promotion the quote did not apply is not sent
	if f.Quote().PromotionApplied {
		req.PromoCode = f.PromoCode
	}

	return req
}
