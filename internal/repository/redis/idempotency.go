package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	idemNS     = ns + ":idem"
	lockMark   = "LOCK:"
	resultMark = "RES:"
)

func KeyIdemSubmit(checkoutID, idemKey string) string {
	return fmt.Sprintf("%s:submit:%s:%s", idemNS, checkoutID, idemKey)
}

// Deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// IdempotencyStore keeps short-lived locks and replayable results. A key
// holds either a lock owned by one holder token or a saved JSON result.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock takes key for lockTTL. It returns the holder token needed by
// Release, or ok=false if the key is taken.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (string, bool, error) {
	token := lockMark + uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil || !ok {
		return "", false, err
	}

	return token, true, nil
}

// Release drops the lock if token still owns it. A lock that expired and
// was taken by someone else is left alone.
func (s *IdempotencyStore) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, s.rdb, []string{key}, token).Err()
}

func (s *IdempotencyStore) IsLocked(ctx context.Context, key string) (bool, error) {
	v, err := s.get(ctx, key)
	if err != nil {
		return false, err
	}

	return strings.HasPrefix(v, lockMark), nil
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, resultMark+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.get(ctx, key)
	if err != nil {
		return "", false, err
	}

	payload, ok := strings.CutPrefix(v, resultMark)
	return payload, ok, nil
}

func (s *IdempotencyStore) get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
