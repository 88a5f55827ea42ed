package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	redisrepo "github.com/kirinyoku/eventhub-checkout/internal/repository/redis"
)

type Upstream interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
}

type Config struct {
	EventTTL time.Duration
}

type Service struct {
	upstream Upstream
	cache    *redisrepo.Cache
	logger   *slog.Logger
	cfg      Config
}

func New(upstream Upstream, cache *redisrepo.Cache, logger *slog.Logger, cfg Config) *Service {
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		upstream: upstream,
		cache:    cache,
		logger:   logger,
		cfg:      cfg,
	}
}

// GetEvent returns an event, served from the cache when possible. Seat
// counts may therefore lag EventHub by up to the configured TTL; the
// authoritative check happens when the booking is submitted.
//
// Returns:
//   - *domain.Event: the event.
//   - error: catalog.ErrEventNotFound if EventHub does not know the event.
func (s *Service) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	const op = "service.catalog.GetEvent"

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyEvent(id),
		s.cfg.EventTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.upstream.GetEvent(ctx, id)
			if err != nil {
				if errors.Is(err, eventhub.ErrNotFound) {
					return domain.Event{}, ErrEventNotFound
				}

				return domain.Event{}, err
			}

			return *e, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &event, nil
}

// GetFreshEvent bypasses and then refreshes the cache.
func (s *Service) GetFreshEvent(ctx context.Context, id string) (*domain.Event, error) {
	const op = "service.catalog.GetFreshEvent"

	if err := s.cache.InvalidateEvent(ctx, id); err != nil {
		s.logger.Warn("drop cached event", "event_id", id, "error", err)
	}

	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return e, nil
}

// HandleEventChanged is the pub/sub handler for event_changed messages.
func (s *Service) HandleEventChanged(ctx context.Context, eventID string) {
	if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
		s.logger.Warn("invalidate event cache", "event_id", eventID, "error", err)
		return
	}

	s.logger.Debug("event cache invalidated", "event_id", eventID)
}
