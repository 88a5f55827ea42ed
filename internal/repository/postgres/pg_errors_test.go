package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/eventhub-checkout/internal/repository"
)

func TestTranslateDBErr(t *testing.T) {
	assert.NoError(t, translateDBErr(nil))
	assert.ErrorIs(t, translateDBErr(pgx.ErrNoRows), repository.ErrNotFound)
	assert.ErrorIs(t, translateDBErr(&pgconn.PgError{Code: "23505"}), repository.ErrConflict)
	assert.ErrorIs(t, translateDBErr(&pgconn.PgError{Code: "23514"}), repository.ErrInvalid)

	var pgErr *pgconn.PgError
	assert.ErrorAs(t, translateDBErr(&pgconn.PgError{Code: "23505", ConstraintName: "booking_receipts_transaction_id_key"}), &pgErr)
	assert.Equal(t, "booking_receipts_transaction_id_key", pgErr.ConstraintName)

	other := errors.New("boom")
	assert.Same(t, other, translateDBErr(other))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestParseAmounts(t *testing.T) {
	var a, b decimal.Decimal
	require.NoError(t, parseAmounts([]string{"150000", "84999.15"}, []*decimal.Decimal{&a, &b}))
	assert.True(t, a.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, "84999.15", b.String())

	assert.Error(t, parseAmounts([]string{"abc"}, []*decimal.Decimal{&a}))
}
