package checkout

import (
	"context"
	"fmt"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	postgresrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/postgres"
	"github.com/kirinyoku/eventhub-checkout/internal/uow"
)

// ReceiptRecorder persists a receipt and runs afterCommit once it is durable.
type ReceiptRecorder interface {
	Record(ctx context.Context, rc domain.Receipt, afterCommit func(ctx context.Context)) error
}

type pgRecorder struct {
	uow      *uow.UoW
	receipts *postgresrepo.ReceiptRepo
}

func NewReceiptRecorder(store *postgresrepo.Store) ReceiptRecorder {
	return &pgRecorder{
		uow:      uow.NewUoW(store),
		receipts: store.Receipts(),
	}
}

func (r *pgRecorder) Record(ctx context.Context, rc domain.Receipt, afterCommit func(ctx context.Context)) error {
	const op = "service.checkout.Record"

	err := r.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := r.receipts.With(tx).Insert(ctx, rc); err != nil {
			return err
		}

		if afterCommit != nil {
			after(afterCommit)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
