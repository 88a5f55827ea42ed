package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// RunTxRetry is RunTx retried on serialization failures and deadlocks.
func (s *Store) RunTxRetry(
	ctx context.Context,
	opts *pgx.TxOptions,
	attempts int,
	fn func(ctx context.Context, tx DB) error,
) error {
	var err error
	for i := 0; i < max(1, attempts); i++ {
		err = s.RunTx(ctx, opts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}

	return err
}

func (s *Store) Receipts() *ReceiptRepo { return &ReceiptRepo{pool: s.pool} }

const schema = `
CREATE TABLE IF NOT EXISTS booking_receipts (
	id              UUID PRIMARY KEY,
	transaction_id  TEXT NOT NULL UNIQUE,
	user_id         TEXT NOT NULL,
	event_id        TEXT NOT NULL,
	quantity        INT NOT NULL CHECK (quantity > 0),
	unit_price      NUMERIC NOT NULL,
	original_total  NUMERIC NOT NULL,
	points_discount NUMERIC NOT NULL,
	promo_code      TEXT NOT NULL DEFAULT '',
	promo_discount  NUMERIC NOT NULL,
	final_total     NUMERIC NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS booking_receipts_user_idx
	ON booking_receipts (user_id, created_at DESC);
`

// EnsureSchema creates the tables this service owns if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Store.EnsureSchema: %w", err)
	}
	return nil
}
