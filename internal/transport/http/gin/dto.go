package httpgin

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/pricing"
	"github.com/kirinyoku/eventhub-checkout/internal/service/checkout"
	"github.com/kirinyoku/eventhub-checkout/internal/service/transactions"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateCheckoutRequest struct {
	Quantity      *int    `json:"quantity"`
	QuantityDelta int     `json:"quantityDelta" binding:"omitempty,oneof=-1 1"`
	PointsToUse   *int64  `json:"pointsToUse"`
	UseAllPoints  bool    `json:"useAllPoints"`
	PromoCode     *string `json:"promoCode" binding:"omitempty,promocode"`
}

func (r UpdateCheckoutRequest) changes() checkout.Changes {
	return checkout.Changes{
		Quantity:      r.Quantity,
		QuantityDelta: r.QuantityDelta,
		Points:        r.PointsToUse,
		UseAllPoints:  r.UseAllPoints,
		PromoCode:     r.PromoCode,
	}
}

type ApplyPromotionRequest struct {
	Code *string `json:"code" binding:"omitempty,promocode"`
}

type PaymentProofRequest struct {
	PaymentProof string `json:"paymentProof" binding:"required,url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SessionResponse struct {
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type EventResponse struct {
	domain.Event
	DisplayPrice string `json:"displayPrice"`
}

type CheckoutResponse struct {
	ID               string                 `json:"id"`
	EventID          string                 `json:"eventId"`
	EventTitle       string                 `json:"eventTitle"`
	UnitPrice        decimal.Decimal        `json:"unitPrice"`
	IsFree           bool                   `json:"isFree"`
	AvailableSeats   int                    `json:"availableSeats"`
	Quantity         int                    `json:"quantity"`
	MaxQuantity      int                    `json:"maxQuantity"`
	PointsAvailable  int64                  `json:"pointsAvailable"`
	PointsToUse      int64                  `json:"pointsToUse"`
	MaxPoints        int64                  `json:"maxPoints"`
	PromoCode        string                 `json:"promoCode"`
	AppliedPromotion *domain.Promotion      `json:"appliedPromotion,omitempty"`
	Quote            pricing.Quote          `json:"quote"`
	Display          pricing.FormattedQuote `json:"display"`
	ValidatingPromo  bool                   `json:"validatingPromo"`
	Submitting       bool                   `json:"submitting"`
	CanSubmit        bool                   `json:"canSubmit"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

func toCheckoutResponse(co *checkout.Checkout, tag language.Tag) CheckoutResponse {
	f := co.Form
	q := f.Quote()

	return CheckoutResponse{
		ID:               co.ID,
		EventID:          f.EventID,
		EventTitle:       f.EventTitle,
		UnitPrice:        f.UnitPrice,
		IsFree:           f.IsFree,
		AvailableSeats:   f.AvailableSeats,
		Quantity:         f.Quantity,
		MaxQuantity:      f.MaxQuantity(),
		PointsAvailable:  f.PointsAvailable,
		PointsToUse:      f.PointsToUse,
		MaxPoints:        f.MaxPoints(),
		PromoCode:        f.PromoCode,
		AppliedPromotion: f.ActivePromotion(),
		Quote:            q,
		Display:          q.Format(tag),
		ValidatingPromo:  f.ValidatingPromo,
		Submitting:       f.Submitting,
		CanSubmit:        f.CanSubmit() == nil,
		UpdatedAt:        co.UpdatedAt,
	}
}

// PromotionErrorResponse carries the form state alongside a rejected or
// failed promo validation so the client can re-render it.
type PromotionErrorResponse struct {
	Error    string            `json:"error"`
	Checkout *CheckoutResponse `json:"checkout,omitempty"`
}

type SubmitResponse struct {
	CheckoutID      string                   `json:"checkoutId"`
	TransactionID   string                   `json:"transactionId"`
	Status          domain.TransactionStatus `json:"status"`
	PaymentDeadline *time.Time               `json:"paymentDeadline,omitempty"`
	ReceiptID       uuid.UUID                `json:"receiptId"`
	Payable         decimal.Decimal          `json:"payable"`
	Quote           pricing.Quote            `json:"quote"`
	Display         pricing.FormattedQuote   `json:"display"`
}

func toSubmitResponse(sub *checkout.Submission, tag language.Tag) SubmitResponse {
	return SubmitResponse{
		CheckoutID:      sub.CheckoutID,
		TransactionID:   sub.Transaction.ID,
		Status:          sub.Transaction.Status,
		PaymentDeadline: sub.Transaction.PaymentDeadline,
		ReceiptID:       sub.ReceiptID,
		Payable:         sub.Quote.Payable(),
		Quote:           sub.Quote,
		Display:         sub.Quote.Format(tag),
	}
}

type TransactionResponse struct {
	domain.Transaction
	TimeLeftSec  int64  `json:"timeLeftSec"`
	DisplayTotal string `json:"displayTotal"`
}

func toTransactionResponse(st transactions.Status, tag language.Tag) TransactionResponse {
	return TransactionResponse{
		Transaction:  st.Transaction,
		TimeLeftSec:  int64(st.TimeLeft.Seconds()),
		DisplayTotal: pricing.Format(st.FinalAmount, tag),
	}
}

type ReceiptResponse struct {
	ID             uuid.UUID       `json:"id"`
	TransactionID  string          `json:"transactionId"`
	EventID        string          `json:"eventId"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	OriginalTotal  decimal.Decimal `json:"originalTotal"`
	PointsDiscount decimal.Decimal `json:"pointsDiscount"`
	PromoCode      string          `json:"promoCode,omitempty"`
	PromoDiscount  decimal.Decimal `json:"promoDiscount"`
	FinalTotal     decimal.Decimal `json:"finalTotal"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func toReceiptResponse(rc domain.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:             rc.ID,
		TransactionID:  rc.TransactionID,
		EventID:        rc.EventID,
		Quantity:       rc.Quantity,
		UnitPrice:      rc.UnitPrice,
		OriginalTotal:  rc.OriginalTotal,
		PointsDiscount: rc.PointsDiscount,
		PromoCode:      rc.PromoCode,
		PromoDiscount:  rc.PromoDiscount,
		FinalTotal:     rc.FinalTotal,
		CreatedAt:      rc.CreatedAt,
	}
}
