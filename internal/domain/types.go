package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCustomer  Role = "CUSTOMER"
	RoleOrganizer Role = "ORGANIZER"
	RoleAdmin     Role = "ADMIN"
)

type EventStatus string

const (
	EventUpcoming  EventStatus = "UPCOMING"
	EventActive    EventStatus = "ACTIVE"
	EventEnded     EventStatus = "ENDED"
	EventCancelled EventStatus = "CANCELLED"
)

type TransactionStatus string

const (
	TxWaitingPayment TransactionStatus = "WAITING_PAYMENT"
	TxWaitingConfirm TransactionStatus = "WAITING_CONFIRM"
	TxDone           TransactionStatus = "DONE"
	TxRejected       TransactionStatus = "REJECTED"
	TxExpired        TransactionStatus = "EXPIRED"
	TxCancelled      TransactionStatus = "CANCELLED"
)

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
	Role     Role   `json:"role"`
	Points   int64  `json:"points"`
}

type Event struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Category       string          `json:"category"`
	Location       string          `json:"location"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	Price          decimal.Decimal `json:"price"`
	TotalSeats     int             `json:"totalSeats"`
	AvailableSeats int             `json:"availableSeats"`
	IsFree         bool            `json:"isFree"`
	Status         EventStatus     `json:"status"`
	OrganizerID    string          `json:"organizerId"`
}

// UnitPrice is the per-ticket price used for quoting. Free events are
// always quoted at zero regardless of the stored price.
func (e Event) UnitPrice() decimal.Decimal {
	if e.IsFree || e.Price.IsNegative() {
		return decimal.Zero
	}
	return e.Price
}

type Promotion struct {
	ID              string           `json:"id,omitempty"`
	Code            string           `json:"code"`
	DiscountPercent int              `json:"discountPercent"`
	MinPurchase     *decimal.Decimal `json:"minPurchase,omitempty"`
	ValidUntil      time.Time        `json:"validUntil"`
}

// PromotionValidation is the upstream verdict for a promo code.
type PromotionValidation struct {
	Valid     bool
	Promotion *Promotion
	Message   string
}

type BookingRequest struct {
	EventID    string `json:"eventId"`
	Quantity   int    `json:"quantity"`
	PointsUsed *int64 `json:"pointsUsed,omitempty"`
	PromoCode  string `json:"promoCode,omitempty"`
}

type Transaction struct {
	ID              string            `json:"id"`
	EventID         string            `json:"eventId"`
	UserID          string            `json:"userId"`
	Quantity        int               `json:"quantity,omitempty"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
	PointsUsed      int64             `json:"pointsUsed"`
	FinalAmount     decimal.Decimal   `json:"finalAmount"`
	PaymentProof    string            `json:"paymentProof,omitempty"`
	Status          TransactionStatus `json:"status"`
	PaymentDeadline *time.Time        `json:"paymentDeadline,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// TimeLeft reports how long the buyer still has to upload a payment proof.
// It is zero once the deadline has passed or when no deadline applies.
func (t Transaction) TimeLeft(now time.Time) time.Duration {
	if t.Status != TxWaitingPayment || t.PaymentDeadline == nil {
		return 0
	}

	left := t.PaymentDeadline.Sub(now)
	if left < 0 {
		return 0
	}

	return left
}

// Receipt is the local record of a checkout that was submitted upstream.
type Receipt struct {
	ID             uuid.UUID
	TransactionID  string
	UserID         string
	EventID        string
	Quantity       int
	UnitPrice      decimal.Decimal
	OriginalTotal  decimal.Decimal
	PointsDiscount decimal.Decimal
	PromoCode      string
	PromoDiscount  decimal.Decimal
	FinalTotal     decimal.Decimal
	CreatedAt      time.Time
}

// Session is a signed-in user as seen by this service.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}
