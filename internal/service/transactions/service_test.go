package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
)

type fakeUpstream struct {
	txs      map[string]domain.Transaction
	uploaded string
}

func (f *fakeUpstream) MyTransactions(context.Context, string) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, 0, len(f.txs))
	for _, tx := range f.txs {
		out = append(out, tx)
	}
	return out, nil
}

func (f *fakeUpstream) GetTransaction(_ context.Context, _, id string) (*domain.Transaction, error) {
	tx, ok := f.txs[id]
	if !ok {
		return nil, eventhub.ErrNotFound
	}
	return &tx, nil
}

func (f *fakeUpstream) UploadPaymentProof(_ context.Context, _, id, proof string) (*domain.Transaction, error) {
	f.uploaded = proof
	tx := f.txs[id]
	tx.PaymentProof = proof
	tx.Status = domain.TxWaitingConfirm
	return &tx, nil
}

type fakeReceipts struct {
	limit, offset int
}

func (f *fakeReceipts) ListByUser(_ context.Context, _ string, limit, offset int) ([]domain.Receipt, error) {
	f.limit, f.offset = limit, offset
	return nil, nil
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(up Upstream, rl ReceiptLister) *Service {
	s := New(up, rl, Config{})
	s.now = func() time.Time { return fixedNow }
	return s
}

func deadline(d time.Duration) *time.Time {
	t := fixedNow.Add(d)
	return &t
}

func TestGet_TimeLeft(t *testing.T) {
	up := &fakeUpstream{txs: map[string]domain.Transaction{
		"a": {ID: "a", Status: domain.TxWaitingPayment, PaymentDeadline: deadline(90 * time.Minute)},
		"b": {ID: "b", Status: domain.TxDone, PaymentDeadline: deadline(time.Hour)},
	}}
	svc := newService(up, &fakeReceipts{})

	st, err := svc.Get(context.Background(), "tok", "a")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, st.TimeLeft)

	st, err = svc.Get(context.Background(), "tok", "b")
	require.NoError(t, err)
	assert.Zero(t, st.TimeLeft, "only pending payments count down")

	_, err = svc.Get(context.Background(), "tok", "zzz")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	list, err := svc.List(context.Background(), "tok")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUploadPaymentProof(t *testing.T) {
	up := &fakeUpstream{txs: map[string]domain.Transaction{
		"open":    {ID: "open", Status: domain.TxWaitingPayment, PaymentDeadline: deadline(time.Hour)},
		"late":    {ID: "late", Status: domain.TxWaitingPayment, PaymentDeadline: deadline(-time.Minute)},
		"settled": {ID: "settled", Status: domain.TxWaitingConfirm},
	}}
	svc := newService(up, &fakeReceipts{})
	ctx := context.Background()

	_, err := svc.UploadPaymentProof(ctx, "tok", "open", "not a url")
	assert.ErrorIs(t, err, ErrInvalidProof)

	_, err = svc.UploadPaymentProof(ctx, "tok", "late", "https://img.example/p.png")
	assert.ErrorIs(t, err, ErrPaymentDeadline)

	_, err = svc.UploadPaymentProof(ctx, "tok", "settled", "https://img.example/p.png")
	assert.ErrorIs(t, err, ErrNotAwaitingPayment)
	assert.Empty(t, up.uploaded)

	st, err := svc.UploadPaymentProof(ctx, "tok", "open", " https://img.example/p.png ")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/p.png", up.uploaded)
	assert.Equal(t, domain.TxWaitingConfirm, st.Status)
}

func TestReceipts_PageBounds(t *testing.T) {
	rl := &fakeReceipts{}
	svc := newService(&fakeUpstream{}, rl)

	_, err := svc.Receipts(context.Background(), "u-1", 0, -4)
	require.NoError(t, err)
	assert.Equal(t, 20, rl.limit)
	assert.Equal(t, 0, rl.offset)

	_, err = svc.Receipts(context.Background(), "u-1", 1000, 10)
	require.NoError(t, err)
	assert.Equal(t, 100, rl.limit)
	assert.Equal(t, 10, rl.offset)
}
