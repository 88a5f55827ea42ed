package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
)

// ReceiptRepo stores booking receipts. Amounts travel as text to keep
// NUMERIC precision without a custom codec.
type ReceiptRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReceiptRepo) With(db DB) *ReceiptRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReceiptRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert stores a receipt.
//
// Returns:
//   - error: repository.ErrConflict if a receipt for the transaction exists.
func (r *ReceiptRepo) Insert(ctx context.Context, rc domain.Receipt) error {
	const op = "postgres.ReceiptRepo.Insert"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO booking_receipts (
			id, transaction_id, user_id, event_id, quantity,
			unit_price, original_total, points_discount,
			promo_code, promo_discount, final_total, created_at
		 ) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10::numeric, $11::numeric, $12)`,
		rc.ID,
		rc.TransactionID,
		rc.UserID,
		rc.EventID,
		rc.Quantity,
		rc.UnitPrice.String(),
		rc.OriginalTotal.String(),
		rc.PointsDiscount.String(),
		rc.PromoCode,
		rc.PromoDiscount.String(),
		rc.FinalTotal.String(),
		rc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return nil
}

// ListByUser returns a user's receipts, newest first.
func (r *ReceiptRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Receipt, error) {
	const op = "postgres.ReceiptRepo.ListByUser"

	rows, err := r.handle().Query(ctx,
		`SELECT id, transaction_id, user_id, event_id, quantity,
		        unit_price::text, original_total::text, points_discount::text,
		        promo_code, promo_discount::text, final_total::text, created_at
		 FROM booking_receipts
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Receipt
	for rows.Next() {
		var rc domain.Receipt
		var unit, original, points, promo, final string

		if err := rows.Scan(
			&rc.ID,
			&rc.TransactionID,
			&rc.UserID,
			&rc.EventID,
			&rc.Quantity,
			&unit,
			&original,
			&points,
			&rc.PromoCode,
			&promo,
			&final,
			&rc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}

		if err := parseAmounts(
			[]string{unit, original, points, promo, final},
			[]*decimal.Decimal{&rc.UnitPrice, &rc.OriginalTotal, &rc.PointsDiscount, &rc.PromoDiscount, &rc.FinalTotal},
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func parseAmounts(src []string, dst []*decimal.Decimal) error {
	for i, s := range src {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse amount %q: %w", s, err)
		}
		*dst[i] = d
	}
	return nil
}
