package transactions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
)

type Upstream interface {
	MyTransactions(ctx context.Context, token string) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, token, id string) (*domain.Transaction, error)
	UploadPaymentProof(ctx context.Context, token, id, proof string) (*domain.Transaction, error)
}

type ReceiptLister interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Receipt, error)
}

type Config struct {
	DefaultReceiptsPage int
	MaxReceiptsPage     int
}

type Service struct {
	upstream Upstream
	receipts ReceiptLister
	cfg      Config
	now      func() time.Time
}

func New(upstream Upstream, receipts ReceiptLister, cfg Config) *Service {
	if cfg.DefaultReceiptsPage <= 0 {
		cfg.DefaultReceiptsPage = 20
	}

	if cfg.MaxReceiptsPage <= 0 {
		cfg.MaxReceiptsPage = 100
	}

	return &Service{
		upstream: upstream,
		receipts: receipts,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Status is a transaction together with the time left to pay for it.
type Status struct {
	domain.Transaction
	TimeLeft time.Duration
}

func (s *Service) List(ctx context.Context, token string) ([]Status, error) {
	const op = "service.transactions.List"

	txs, err := s.upstream.MyTransactions(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	out := make([]Status, 0, len(txs))
	for _, tx := range txs {
		out = append(out, Status{Transaction: tx, TimeLeft: tx.TimeLeft(now)})
	}

	return out, nil
}

// Get returns one of the user's transactions.
//
// Returns:
//   - error: transactions.ErrTransactionNotFound if EventHub does not know it.
func (s *Service) Get(ctx context.Context, token, id string) (*Status, error) {
	const op = "service.transactions.Get"

	tx, err := s.upstream.GetTransaction(ctx, token, id)
	if err != nil {
		if errors.Is(err, eventhub.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTransactionNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Status{Transaction: *tx, TimeLeft: tx.TimeLeft(s.now())}, nil
}

// UploadPaymentProof attaches a proof URL to a transaction that is still
// waiting for payment.
//
// Returns:
//   - error: transactions.ErrInvalidProof if proof is not an http(s) URL.
//   - error: transactions.ErrNotAwaitingPayment if the status forbids it.
//   - error: transactions.ErrPaymentDeadline if the deadline has passed.
func (s *Service) UploadPaymentProof(ctx context.Context, token, id, proof string) (*Status, error) {
	const op = "service.transactions.UploadPaymentProof"

	proof = strings.TrimSpace(proof)
	if u, err := url.Parse(proof); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidProof)
	}

	cur, err := s.Get(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cur.Status != domain.TxWaitingPayment {
		return nil, fmt.Errorf("%s: %w", op, ErrNotAwaitingPayment)
	}

	if cur.PaymentDeadline != nil && cur.TimeLeft <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrPaymentDeadline)
	}

	tx, err := s.upstream.UploadPaymentProof(ctx, token, id, proof)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Status{Transaction: *tx, TimeLeft: tx.TimeLeft(s.now())}, nil
}

// Receipts lists the receipts recorded for checkouts the user submitted.
func (s *Service) Receipts(ctx context.Context, userID string, limit, offset int) ([]domain.Receipt, error) {
	const op = "service.transactions.Receipts"

	if s.receipts == nil {
		return []domain.Receipt{}, nil
	}

	if limit <= 0 {
		limit = s.cfg.DefaultReceiptsPage
	}

	if limit > s.cfg.MaxReceiptsPage {
		limit = s.cfg.MaxReceiptsPage
	}

	if offset < 0 {
		offset = 0
	}

	rs, err := s.receipts.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rs, nil
}
