package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/repository"
)

type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// Save stores s until its ExpiresAt.
func (st *SessionStore) Save(ctx context.Context, s domain.Session) error {
	const op = "redisrepo.SessionStore.Save"

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%s: session already expired", op)
	}

	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := st.rdb.Set(ctx, KeySession(s.ID), b, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (st *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	const op = "redisrepo.SessionStore.Get"

	b, err := st.rdb.Get(ctx, KeySession(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &s, nil
}

func (st *SessionStore) Delete(ctx context.Context, id string) error {
	const op = "redisrepo.SessionStore.Delete"

	if err := st.rdb.Del(ctx, KeySession(id)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
