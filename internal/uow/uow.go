package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	postgres "github.com/kirinyoku/eventhub-checkout/internal/repository/postgres"
)

// serializationAttempts bounds retries of a unit of work that lost a
// serialization race.
const serializationAttempts = 3

// AfterCommit runs once the surrounding transaction has committed.
type AfterCommit func(ctx context.Context)

// Work is a transactional function. Hooks registered through after run only
// if the final attempt commits.
type Work func(ctx context.Context, tx postgres.DB, after func(AfterCommit)) error

type UoW struct {
	store *postgres.Store
}

func NewUoW(store *postgres.Store) *UoW {
	return &UoW{store: store}
}

func (u *UoW) Do(ctx context.Context, fn Work) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts runs fn in a transaction, retrying serialization failures.
// Hooks from aborted attempts are discarded.
func (u *UoW) DoWithOpts(ctx context.Context, opts *pgx.TxOptions, fn Work) error {
	var hooks []AfterCommit

	err := u.store.RunTxRetry(ctx, opts, serializationAttempts, func(ctx context.Context, tx postgres.DB) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
