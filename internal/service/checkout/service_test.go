package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	redisrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/redis"
	"github.com/kirinyoku/eventhub-checkout/internal/service/catalog"
	"github.com/kirinyoku/eventhub-checkout/internal/service/promotion"
)

type fakeEvents struct {
	event domain.Event
	fresh *domain.Event
}

func (f *fakeEvents) GetEvent(_ context.Context, id string) (*domain.Event, error) {
	if id != f.event.ID {
		return nil, catalog.ErrEventNotFound
	}
	e := f.event
	return &e, nil
}

func (f *fakeEvents) GetFreshEvent(ctx context.Context, id string) (*domain.Event, error) {
	if f.fresh != nil {
		e := *f.fresh
		return &e, nil
	}
	return f.GetEvent(ctx, id)
}

type fakeGate struct {
	promo  *domain.Promotion
	err    error
	calls  int
	during func()
}

func (g *fakeGate) Check(context.Context, string, string, string, string, decimal.Decimal) (*domain.Promotion, error) {
	g.calls++
	if g.during != nil {
		g.during()
	}
	return g.promo, g.err
}

type fakeBooker struct {
	calls int
	last  domain.BookingRequest
	err   error
}

func (b *fakeBooker) CreateBooking(_ context.Context, _ string, req domain.BookingRequest) (*domain.Transaction, error) {
	b.calls++
	b.last = req
	if b.err != nil {
		return nil, b.err
	}
	return &domain.Transaction{ID: "tx-1", EventID: req.EventID, Status: domain.TxWaitingPayment}, nil
}

type fakeRecorder struct {
	receipts []domain.Receipt
	after    int
}

func (r *fakeRecorder) Record(ctx context.Context, rc domain.Receipt, after func(ctx context.Context)) error {
	r.receipts = append(r.receipts, rc)
	if after != nil {
		after(ctx)
		r.after++
	}
	return nil
}

type fixture struct {
	svc      *Service
	mr       *miniredis.Miniredis
	locks    *redisrepo.IdempotencyStore
	events   *fakeEvents
	gate     *fakeGate
	booker   *fakeBooker
	recorder *fakeRecorder
	sess     *domain.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		mr:       mr,
		locks:    redisrepo.NewIdempotencyStore(rdb, time.Hour),
		events:   &fakeEvents{event: paidEvent(100000, 10)},
		gate:     &fakeGate{},
		booker:   &fakeBooker{},
		recorder: &fakeRecorder{},
		sess: &domain.Session{
			ID:    "sid",
			Token: "tok",
			User:  domain.User{ID: "u-1", Points: 30000},
		},
	}

	f.svc = New(
		f.events,
		f.gate,
		f.booker,
		redisrepo.NewCheckoutStore(rdb, 30*time.Minute),
		f.locks,
		redisrepo.New(rdb),
		redisrepo.NewEventsPubSub(rdb),
		f.recorder,
		nil,
		Config{},
	)

	return f
}

func ptr[T any](v T) *T { return &v }

func TestService_StartAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, co.Form.Quantity)
	assert.Equal(t, int64(30000), co.Form.PointsAvailable)

	got, err := f.svc.Get(ctx, "u-1", co.ID)
	require.NoError(t, err)
	assert.Equal(t, co.ID, got.ID)
	assert.False(t, got.Form.ValidatingPromo)

	_, err = f.svc.Get(ctx, "u-2", co.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Get(ctx, "u-1", "missing")
	assert.ErrorIs(t, err, ErrCheckoutNotFound)

	_, err = f.svc.Start(ctx, f.sess, "nope")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestService_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	co, err = f.svc.Update(ctx, "u-1", co.ID, Changes{Quantity: ptr(3), UseAllPoints: true})
	require.NoError(t, err)
	assert.Equal(t, 3, co.Form.Quantity)
	assert.Equal(t, int64(30000), co.Form.PointsToUse)

	co, err = f.svc.Update(ctx, "u-1", co.ID, Changes{QuantityDelta: -1, Points: ptr(int64(99999))})
	require.NoError(t, err)
	assert.Equal(t, 2, co.Form.Quantity)
	assert.Equal(t, int64(30000), co.Form.PointsToUse)
	assert.True(t, co.Form.Quote().FinalTotal.Equal(decimal.NewFromInt(170000)))

	_, ok, err := f.locks.AcquireLock(ctx, redisrepo.KeyCheckoutLock(co.ID, lockSubmit), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Update(ctx, "u-1", co.ID, Changes{Quantity: ptr(1)})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestService_ApplyPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	f.gate.promo = &domain.Promotion{Code: "SAVE10", DiscountPercent: 10, ValidUntil: time.Now().Add(time.Hour)}
	co, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, ptr(" save10 "))
	require.NoError(t, err)
	require.NotNil(t, co.Form.Applied)
	assert.True(t, co.Form.Quote().FinalTotal.Equal(decimal.NewFromInt(90000)))

	got, err := f.svc.Get(ctx, "u-1", co.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Form.Applied, "verdict is persisted")
	assert.False(t, got.Form.ValidatingPromo, "lock released")

	f.gate.promo, f.gate.err = nil, promotion.ErrUnavailable
	co, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, nil)
	assert.ErrorIs(t, err, promotion.ErrUnavailable)
	require.NotNil(t, co)
	assert.NotNil(t, co.Form.Applied, "service failure keeps the promotion")

	f.gate.err = &promotion.InvalidError{Code: "SAVE10"}
	co, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, nil)
	assert.ErrorIs(t, err, promotion.ErrInvalid)
	assert.Nil(t, co.Form.Applied)

	calls := f.gate.calls
	co, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, ptr("  "))
	assert.ErrorIs(t, err, promotion.ErrEmptyCode)
	assert.Equal(t, calls, f.gate.calls, "blank code is not sent upstream")
	assert.Empty(t, co.Form.PromoCode)
}

func TestService_ApplyPromotionBusyAndFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	_, ok, err := f.locks.AcquireLock(ctx, redisrepo.KeyCheckoutLock(co.ID, lockPromo), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, ptr("SAVE"))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, f.gate.calls)

	got, err := f.svc.Get(ctx, "u-1", co.ID)
	require.NoError(t, err)
	assert.True(t, got.Form.ValidatingPromo)

	_, err = f.svc.Submit(ctx, f.sess, co.ID, "")
	assert.ErrorIs(t, err, ErrBusy, "no submit while a code is being validated")

	f.events.event.IsFree = true
	free, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	_, err = f.svc.ApplyPromotion(ctx, f.sess, free.ID, ptr("SAVE"))
	assert.ErrorIs(t, err, ErrFreeEvent)
}

func TestService_StaleVerdictDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	f.gate.promo = &domain.Promotion{Code: "OLD", DiscountPercent: 50}
	f.gate.during = func() {
		_, err := f.svc.Update(ctx, "u-1", co.ID, Changes{PromoCode: ptr("NEW")})
		require.NoError(t, err)
	}

	_, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, ptr("OLD"))
	assert.ErrorIs(t, err, ErrStaleResponse)

	got, err := f.svc.Get(ctx, "u-1", co.ID)
	require.NoError(t, err)
	assert.Equal(t, "NEW", got.Form.PromoCode)
	assert.Nil(t, got.Form.Applied)
}

func TestService_ApplyPromotionUnauthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	f.gate.err = eventhub.ErrUnauthorized
	_, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, ptr("SAVE"))
	assert.ErrorIs(t, err, eventhub.ErrUnauthorized)
}

func TestService_Submit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "u-1", co.ID, Changes{Quantity: ptr(2), Points: ptr(int64(20000))})
	require.NoError(t, err)

	sub, err := f.svc.Submit(ctx, f.sess, co.ID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", sub.Transaction.ID)
	assert.True(t, sub.Quote.FinalTotal.Equal(decimal.NewFromInt(180000)))

	assert.Equal(t, 2, f.booker.last.Quantity)
	require.NotNil(t, f.booker.last.PointsUsed)
	assert.Equal(t, int64(20000), *f.booker.last.PointsUsed)

	require.Len(t, f.recorder.receipts, 1)
	rc := f.recorder.receipts[0]
	assert.Equal(t, "tx-1", rc.TransactionID)
	assert.Equal(t, sub.ReceiptID, rc.ID)
	assert.Equal(t, 1, f.recorder.after)

	_, err = f.svc.Get(ctx, "u-1", co.ID)
	assert.ErrorIs(t, err, ErrCheckoutNotFound, "submitted checkout is closed")

	again, err := f.svc.Submit(ctx, f.sess, co.ID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, sub.ReceiptID, again.ReceiptID)
	assert.Equal(t, 1, f.booker.calls, "replay does not book twice")
}

func TestService_SubmitFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	f.booker.err = &eventhub.StatusError{Code: 409, Message: "seats sold out"}
	_, err = f.svc.Submit(ctx, f.sess, co.ID, "")
	require.ErrorIs(t, err, ErrSubmissionFailed)

	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "seats sold out", se.Reason)

	_, err = f.svc.Get(ctx, "u-1", co.ID)
	require.NoError(t, err, "failed checkout stays open for a retry")

	f.booker.err = &eventhub.StatusError{Code: 503}
	_, err = f.svc.Submit(ctx, f.sess, co.ID, "")
	require.ErrorAs(t, err, &se)
	assert.Empty(t, se.Reason)

	f.booker.err = nil
	_, err = f.svc.Update(ctx, "u-1", co.ID, Changes{Quantity: ptr(5)})
	require.NoError(t, err)

	f.events.fresh = &domain.Event{ID: "ev-1", AvailableSeats: 3}
	_, err = f.svc.Submit(ctx, f.sess, co.ID, "")
	assert.ErrorIs(t, err, ErrInsufficientSeats)
	assert.Empty(t, f.recorder.receipts)

	_, err = f.svc.Submit(ctx, &domain.Session{User: domain.User{ID: "u-2"}}, co.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_ApplyPromotionWhileSubmitting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	co, err := f.svc.Start(ctx, f.sess, "ev-1")
	require.NoError(t, err)

	submitKey := redisrepo.KeyCheckoutLock(co.ID, lockSubmit)
	token, ok, err := f.locks.AcquireLock(ctx, submitKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, ptr("SAVE10"))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, f.gate.calls)

	locked, err := f.locks.IsLocked(ctx, redisrepo.KeyCheckoutLock(co.ID, lockPromo))
	require.NoError(t, err)
	assert.False(t, locked, "promo lock is released when the submit lock wins")

	require.NoError(t, f.locks.Release(ctx, submitKey, token))

	f.gate.promo = &domain.Promotion{Code: "SAVE10", DiscountPercent: 10, ValidUntil: time.Now().Add(time.Hour)}
	co, err = f.svc.ApplyPromotion(ctx, f.sess, co.ID, ptr("SAVE10"))
	require.NoError(t, err)
	assert.NotNil(t, co.Form.Applied)
}
