package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/eventhub-checkout/internal/repository"
)

const maxUpdateRetries = 5

// CheckoutStore keeps checkout state as opaque JSON documents with a
// sliding TTL. Updates are optimistic: the document is WATCHed and the
// write is retried if it changed underneath.
type CheckoutStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCheckoutStore(rdb *redis.Client, ttl time.Duration) *CheckoutStore {
	return &CheckoutStore{rdb: rdb, ttl: ttl}
}

func (s *CheckoutStore) Create(ctx context.Context, id string, doc []byte) error {
	const op = "redisrepo.CheckoutStore.Create"

	ok, err := s.rdb.SetNX(ctx, KeyCheckout(id), doc, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}

	return nil
}

func (s *CheckoutStore) Get(ctx context.Context, id string) ([]byte, error) {
	const op = "redisrepo.CheckoutStore.Get"

	b, err := s.rdb.Get(ctx, KeyCheckout(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

// Update rewrites the document with fn's result. If fn returns an error the
// document is left untouched and the error is returned as is.
func (s *CheckoutStore) Update(ctx context.Context, id string, fn func(doc []byte) ([]byte, error)) error {
	const op = "redisrepo.CheckoutStore.Update"

	key := KeyCheckout(id)

	var fnErr error
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		next, err := fn(cur)
		if err != nil {
			fnErr = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, repository.ErrConflict)
}

func (s *CheckoutStore) Delete(ctx context.Context, id string) error {
	const op = "redisrepo.CheckoutStore.Delete"

	if err := s.rdb.Del(ctx, KeyCheckout(id)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
