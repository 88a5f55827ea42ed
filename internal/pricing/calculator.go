package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Input is everything a booking quote depends on.
type Input struct {
	UnitPrice       decimal.Decimal
	Quantity        int
	PointsAvailable int64
	PointsRequested int64
	Promotion       *domain.Promotion
}

// Quote is the price breakdown shown before a booking is submitted.
// Amounts keep full precision; use Payable for the submitted figure.
type Quote struct {
	OriginalTotal    decimal.Decimal `json:"originalTotal"`
	PointsDiscount   decimal.Decimal `json:"pointsDiscount"`
	AfterPoints      decimal.Decimal `json:"afterPoints"`
	PromoDiscount    decimal.Decimal `json:"promoDiscount"`
	FinalTotal       decimal.Decimal `json:"finalTotal"`
	PromotionApplied bool            `json:"promotionApplied"`
}

// Calculate derives a Quote from in. It never fails: negative inputs count
// as zero and requested points are capped by the balance and the subtotal.
//
// Points are redeemed first. The promotion percentage is then taken from the
// post-points amount, and only if that amount still reaches the promotion's
// minimum purchase.
func Calculate(in Input) Quote {
	unit := in.UnitPrice
	if unit.IsNegative() {
		unit = decimal.Zero
	}

	qty := in.Quantity
	if qty < 0 {
		qty = 0
	}

	original := unit.Mul(decimal.NewFromInt(int64(qty)))

	points := decimal.Min(
		decimal.NewFromInt(nonNegative(in.PointsRequested)),
		decimal.NewFromInt(nonNegative(in.PointsAvailable)),
		original,
	)

	afterPoints := original.Sub(points)

	promo := decimal.Zero
	applied := false
	if p := in.Promotion; p != nil && promotionReached(p, afterPoints) {
		promo = afterPoints.Mul(percent(p.DiscountPercent)).Div(hundred)
		applied = promo.IsPositive()
	}

	final := afterPoints.Sub(promo)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return Quote{
		OriginalTotal:    original,
		PointsDiscount:   points,
		AfterPoints:      afterPoints,
		PromoDiscount:    promo,
		FinalTotal:       final,
		PromotionApplied: applied,
	}
}

// Payable is FinalTotal rounded to the currency's minor unit.
func (q Quote) Payable() decimal.Decimal {
	return q.FinalTotal.Round(MinorUnits)
}

// MaxPoints is the largest number of points that can be redeemed against
// a subtotal with the given balance.
func MaxPoints(available int64, subtotal decimal.Decimal) int64 {
	available = nonNegative(available)
	if !subtotal.IsPositive() {
		return 0
	}

	limit := subtotal.Floor().IntPart()
	if available < limit {
		return available
	}

	return limit
}

func promotionReached(p *domain.Promotion, amount decimal.Decimal) bool {
	if p.MinPurchase == nil {
		return true
	}

	return amount.GreaterThanOrEqual(*p.MinPurchase)
}

func percent(v int) decimal.Decimal {
	switch {
	case v < 0:
		v = 0
	case v > 100:
		v = 100
	}

	return decimal.NewFromInt(int64(v))
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
