package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	"github.com/kirinyoku/eventhub-checkout/internal/pricing"
	"github.com/kirinyoku/eventhub-checkout/internal/repository"
	redisrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/redis"
	"github.com/kirinyoku/eventhub-checkout/internal/service/catalog"
	"github.com/kirinyoku/eventhub-checkout/internal/service/promotion"
)

const (
	lockPromo  = "promo"
	lockSubmit = "submit"
)

type Events interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	GetFreshEvent(ctx context.Context, id string) (*domain.Event, error)
}

type PromotionChecker interface {
	Check(ctx context.Context, rateKey, token, code, eventID string, subtotal decimal.Decimal) (*domain.Promotion, error)
}

type Booker interface {
	CreateBooking(ctx context.Context, token string, req domain.BookingRequest) (*domain.Transaction, error)
}

type Config struct {
	PromoLockTTL  time.Duration
	SubmitLockTTL time.Duration
}

// Checkout is one user's booking form for one event.
type Checkout struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Form      *Form     `json:"form"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Changes is a partial edit of a checkout. Fields apply in declaration
// order, so a quantity change re-clamps points before Points is applied.
type Changes struct {
	Quantity      *int
	QuantityDelta int
	Points        *int64
	UseAllPoints  bool
	PromoCode     *string
}

// Submission is the outcome of a successful submit. It is also what an
// Idempotency-Key replay returns.
type Submission struct {
	CheckoutID  string             `json:"checkoutId"`
	Transaction domain.Transaction `json:"transaction"`
	Quote       pricing.Quote      `json:"quote"`
	ReceiptID   uuid.UUID          `json:"receiptId"`
}

type Service struct {
	events    Events
	gate      PromotionChecker
	booker    Booker
	checkouts *redisrepo.CheckoutStore
	locks     *redisrepo.IdempotencyStore
	cache     *redisrepo.Cache
	pubsub    *redisrepo.EventsPubSub
	receipts  ReceiptRecorder
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func New(
	events Events,
	gate PromotionChecker,
	booker Booker,
	checkouts *redisrepo.CheckoutStore,
	locks *redisrepo.IdempotencyStore,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	receipts ReceiptRecorder,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.PromoLockTTL <= 0 {
		cfg.PromoLockTTL = 15 * time.Second
	}

	if cfg.SubmitLockTTL <= 0 {
		cfg.SubmitLockTTL = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		events:    events,
		gate:      gate,
		booker:    booker,
		checkouts: checkouts,
		locks:     locks,
		cache:     cache,
		pubsub:    pubsub,
		receipts:  receipts,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start opens a checkout for eventID with quantity 1, no points and no code.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sess: the signed-in user; its points balance caps redemption.
//   - eventID: the event to book.
//
// Returns:
//   - *Checkout: the new checkout.
//   - error: checkout.ErrEventNotFound if the event does not exist.
func (s *Service) Start(ctx context.Context, sess *domain.Session, eventID string) (*Checkout, error) {
	const op = "service.checkout.Start"

	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, catalog.ErrEventNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	co := &Checkout{
		ID:        uuid.NewString(),
		UserID:    sess.User.ID,
		Form:      NewForm(*ev, sess.User.Points),
		CreatedAt: now,
		UpdatedAt: now,
	}

	doc, err := json.Marshal(co)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.checkouts.Create(ctx, co.ID, doc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return co, nil
}

// Get returns a checkout with its busy flags filled in from the locks.
//
// Returns:
//   - error: checkout.ErrCheckoutNotFound if it does not exist or expired.
//   - error: checkout.ErrForbidden if it belongs to another user.
func (s *Service) Get(ctx context.Context, userID, id string) (*Checkout, error) {
	const op = "service.checkout.Get"

	co, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.overlayBusy(ctx, co); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return co, nil
}

// Update applies ch to the form. Edits are refused while a submission is
// in flight; editing the promo code during a validation is allowed and
// makes that validation stale.
func (s *Service) Update(ctx context.Context, userID, id string, ch Changes) (*Checkout, error) {
	const op = "service.checkout.Update"

	if err := s.ensureNotLocked(ctx, id, lockSubmit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	co, err := s.mutate(ctx, userID, id, func(f *Form) error {
		if ch.Quantity != nil {
			f.SetQuantity(*ch.Quantity)
		}
		if ch.QuantityDelta != 0 {
			f.SetQuantity(f.Quantity + ch.QuantityDelta)
		}
		if ch.Points != nil {
			f.SetPoints(*ch.Points)
		}
		if ch.UseAllPoints {
			f.UseAllPoints()
		}
		if ch.PromoCode != nil {
			f.SetPromoCode(*ch.PromoCode)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.overlayBusy(ctx, co); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return co, nil
}

// ApplyPromotion validates the form's promo code (after replacing it with
// code, if given) and applies or clears the promotion according to the
// verdict. Only one validation per checkout runs at a time.
//
// Returns:
//   - *Checkout: the checkout after the verdict was recorded. It is also
//     returned alongside promotion errors so callers can render the form.
//   - error: checkout.ErrBusy if a validation or submission is in flight.
//   - error: checkout.ErrFreeEvent for free events.
//   - error: promotion.ErrEmptyCode if the code is blank (promotion cleared).
//   - error: promotion.ErrInvalid, ErrUnavailable or ErrRateLimited from the gate.
//   - error: checkout.ErrStaleResponse if the code changed meanwhile.
func (s *Service) ApplyPromotion(ctx context.Context, sess *domain.Session, id string, code *string) (*Checkout, error) {
	const op = "service.checkout.ApplyPromotion"

	// own lock first, then the submit lock; Submit checks in the same order
	lockKey := redisrepo.KeyCheckoutLock(id, lockPromo)
	token, ok, err := s.locks.AcquireLock(ctx, lockKey, s.cfg.PromoLockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrBusy)
	}

	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.logger.Warn("release promo lock", "checkout_id", id, "error", err)
		}
	}()

	if err := s.ensureNotLocked(ctx, id, lockSubmit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		pending  string
		eventID  string
		subtotal decimal.Decimal
		beginErr error
	)

	co, err := s.mutate(ctx, sess.User.ID, id, func(f *Form) error {
		if code != nil {
			f.SetPromoCode(*code)
		}

		pending, beginErr = f.BeginPromoValidation()
		if errors.Is(beginErr, promotion.ErrEmptyCode) {
			// the cleared promotion is persisted
			return nil
		}
		if beginErr != nil {
			return beginErr
		}

		eventID = f.EventID
		subtotal = f.Subtotal()

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if beginErr != nil {
		return co, fmt.Errorf("%s: %w", op, beginErr)
	}

	p, checkErr := s.gate.Check(ctx, sess.User.ID, sess.Token, pending, eventID, subtotal)
	if errors.Is(checkErr, eventhub.ErrUnauthorized) {
		return nil, fmt.Errorf("%s: %w", op, checkErr)
	}

	co, err = s.mutate(ctx, sess.User.ID, id, func(f *Form) error {
		f.ValidatingPromo = true
		return f.ResolvePromotion(pending, p, checkErr)
	})
	if err != nil {
		if errors.Is(err, ErrStaleResponse) {
			s.logger.Debug("stale promo verdict dropped", "checkout_id", id, "code", pending)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if checkErr != nil {
		return co, fmt.Errorf("%s: %w", op, checkErr)
	}

	return co, nil
}

// ClearPromotion drops the promo code and any applied promotion.
func (s *Service) ClearPromotion(ctx context.Context, userID, id string) (*Checkout, error) {
	const op = "service.checkout.ClearPromotion"

	if err := s.ensureNotLocked(ctx, id, lockSubmit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	co, err := s.mutate(ctx, userID, id, func(f *Form) error {
		f.ClearPromoCode()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return co, nil
}

// Submit books the checkout on EventHub. With a non-empty idemKey a repeated
// call returns the first successful Submission instead of booking again.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sess: the signed-in user; its token authorises the booking.
//   - id: the checkout to submit.
//   - idemKey: optional Idempotency-Key header value.
//
// Returns:
//   - *Submission: the created transaction and the quote it was priced at.
//   - error: checkout.ErrBusy if a validation or submission is in flight.
//   - error: checkout.ErrInsufficientSeats if the event cannot seat Quantity.
//   - error: checkout.ErrSubmissionFailed (as *SubmissionError) if EventHub
//     did not accept the booking. The checkout is kept for a retry.
func (s *Service) Submit(ctx context.Context, sess *domain.Session, id, idemKey string) (*Submission, error) {
	const op = "service.checkout.Submit"

	var idemRes string
	if idemKey != "" {
		idemRes = redisrepo.KeyIdemSubmit(id, idemKey)
		if payload, found, err := s.locks.GetResult(ctx, idemRes); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		} else if found {
			var sub Submission
			if err := json.Unmarshal([]byte(payload), &sub); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}

			return &sub, nil
		}
	}

	lockKey := redisrepo.KeyCheckoutLock(id, lockSubmit)
	token, ok, err := s.locks.AcquireLock(ctx, lockKey, s.cfg.SubmitLockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrBusy)
	}

	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.logger.Warn("release submit lock", "checkout_id", id, "error", err)
		}
	}()

	co, err := s.load(ctx, sess.User.ID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if co.Form.ValidatingPromo, err = s.locks.IsLocked(ctx, redisrepo.KeyCheckoutLock(id, lockPromo)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if ev, err := s.events.GetFreshEvent(ctx, co.Form.EventID); err != nil {
		s.logger.Warn("refresh seats before submit", "event_id", co.Form.EventID, "error", err)
	} else {
		co.Form.AvailableSeats = ev.AvailableSeats
	}

	if err := co.Form.CanSubmit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	quote := co.Form.Quote()
	req := co.Form.BookingRequest()

	tx, err := s.booker.CreateBooking(ctx, sess.Token, req)
	if err != nil {
		if errors.Is(err, eventhub.ErrUnauthorized) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, submissionError(err))
	}

	sub := &Submission{
		CheckoutID:  co.ID,
		Transaction: *tx,
		Quote:       quote,
		ReceiptID:   uuid.New(),
	}

	s.recordReceipt(ctx, sess.User.ID, co.Form, sub)

	if idemRes != "" {
		if b, err := json.Marshal(sub); err == nil {
			if err := s.locks.SaveResult(ctx, idemRes, string(b)); err != nil {
				s.logger.Warn("save submit result", "checkout_id", id, "error", err)
			}
		}
	}

	if err := s.checkouts.Delete(ctx, id); err != nil {
		s.logger.Warn("delete submitted checkout", "checkout_id", id, "error", err)
	}

	return sub, nil
}

// recordReceipt stores the local receipt. The booking already exists
// upstream at this point, so failures are logged rather than returned.
func (s *Service) recordReceipt(ctx context.Context, userID string, f *Form, sub *Submission) {
	if s.receipts == nil {
		return
	}

	promoCode := ""
	if f.ActivePromotion() != nil && sub.Quote.PromotionApplied {
		promoCode = f.PromoCode
	}

	rc := domain.Receipt{
		ID:             sub.ReceiptID,
		TransactionID:  sub.Transaction.ID,
		UserID:         userID,
		EventID:        f.EventID,
		Quantity:       f.Quantity,
		UnitPrice:      f.UnitPrice,
		OriginalTotal:  sub.Quote.OriginalTotal,
		PointsDiscount: sub.Quote.PointsDiscount,
		PromoCode:      promoCode,
		PromoDiscount:  sub.Quote.PromoDiscount,
		FinalTotal:     sub.Quote.FinalTotal,
		CreatedAt:      s.now().UTC(),
	}

	eventID := f.EventID
	err := s.receipts.Record(context.WithoutCancel(ctx), rc, func(ctx context.Context) {
		if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
			s.logger.Warn("invalidate event after booking", "event_id", eventID, "error", err)
		}
		if err := s.pubsub.PublishEventChanged(ctx, eventID); err != nil {
			s.logger.Warn("publish event changed", "event_id", eventID, "error", err)
		}
	})
	if err != nil {
		s.logger.Error("record receipt", "transaction_id", sub.Transaction.ID, "error", err)
	}
}

func (s *Service) load(ctx context.Context, userID, id string) (*Checkout, error) {
	doc, err := s.checkouts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCheckoutNotFound
		}

		return nil, err
	}

	return decodeOwned(doc, userID)
}

// mutate runs fn against the stored form under optimistic concurrency. An
// error from fn aborts the write and is returned unchanged.
func (s *Service) mutate(ctx context.Context, userID, id string, fn func(f *Form) error) (*Checkout, error) {
	var out *Checkout

	err := s.checkouts.Update(ctx, id, func(doc []byte) ([]byte, error) {
		co, err := decodeOwned(doc, userID)
		if err != nil {
			return nil, err
		}

		if err := fn(co.Form); err != nil {
			return nil, err
		}

		co.UpdatedAt = s.now()
		out = co

		return json.Marshal(co)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCheckoutNotFound
		}

		return nil, err
	}

	return out, nil
}

func (s *Service) overlayBusy(ctx context.Context, co *Checkout) error {
	var err error

	if co.Form.ValidatingPromo, err = s.locks.IsLocked(ctx, redisrepo.KeyCheckoutLock(co.ID, lockPromo)); err != nil {
		return err
	}

	if co.Form.Submitting, err = s.locks.IsLocked(ctx, redisrepo.KeyCheckoutLock(co.ID, lockSubmit)); err != nil {
		return err
	}

	return nil
}

func (s *Service) ensureNotLocked(ctx context.Context, id, action string) error {
	locked, err := s.locks.IsLocked(ctx, redisrepo.KeyCheckoutLock(id, action))
	if err != nil {
		return err
	}
	if locked {
		return ErrBusy
	}

	return nil
}

func decodeOwned(doc []byte, userID string) (*Checkout, error) {
	var co Checkout
	if err := json.Unmarshal(doc, &co); err != nil {
		return nil, fmt.Errorf("decode checkout: %w", err)
	}

	if co.Form == nil {
		return nil, ErrCheckoutNotFound
	}

	if co.UserID != userID {
		return nil, ErrForbidden
	}

	return &co, nil
}

func submissionError(err error) error {
	var se *eventhub.StatusError
	if errors.As(err, &se) && se.Code < 500 {
		return &SubmissionError{Reason: se.Message}
	}

	if errors.Is(err, eventhub.ErrNotFound) {
		return &SubmissionError{Reason: "event no longer exists"}
	}

	return &SubmissionError{}
}
