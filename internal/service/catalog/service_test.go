package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	redisrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/redis"
)

type countingUpstream struct {
	calls int
	event domain.Event
	err   error
}

func (u *countingUpstream) GetEvent(context.Context, string) (*domain.Event, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	e := u.event
	return &e, nil
}

func newService(t *testing.T, up Upstream) *Service {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(up, redisrepo.New(rdb), nil, Config{})
}

func TestGetEvent_CachedUntilChanged(t *testing.T) {
	up := &countingUpstream{event: domain.Event{ID: "ev-1", AvailableSeats: 5}}
	svc := newService(t, up)
	ctx := context.Background()

	for range 3 {
		ev, err := svc.GetEvent(ctx, "ev-1")
		require.NoError(t, err)
		assert.Equal(t, 5, ev.AvailableSeats)
	}
	assert.Equal(t, 1, up.calls)

	up.event.AvailableSeats = 2
	svc.HandleEventChanged(ctx, "ev-1")

	ev, err := svc.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ev.AvailableSeats)
	assert.Equal(t, 2, up.calls)

	_, err = svc.GetFreshEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 3, up.calls)
}

func TestGetEvent_Errors(t *testing.T) {
	svc := newService(t, &countingUpstream{err: eventhub.ErrNotFound})
	_, err := svc.GetEvent(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrEventNotFound)

	boom := errors.New("boom")
	svc = newService(t, &countingUpstream{err: boom})
	_, err = svc.GetEvent(context.Background(), "ev-1")
	assert.ErrorIs(t, err, boom)
}
