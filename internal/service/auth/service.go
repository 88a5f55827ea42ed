package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	"github.com/kirinyoku/eventhub-checkout/internal/repository"
)

type Upstream interface {
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	GetProfile(ctx context.Context, token string) (*domain.User, error)
}

type SessionStore interface {
	Save(ctx context.Context, s domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
}

type Config struct {
	// SessionTTL is the longest a session lives, even if the token
	// outlives it.
	SessionTTL time.Duration
	// JWTSecret verifies upstream tokens when set. Without it the claims
	// are read unverified and used only for the expiry.
	JWTSecret string
}

type Service struct {
	upstream Upstream
	sessions SessionStore
	cfg      Config
	now      func() time.Time
}

func New(upstream Upstream, sessions SessionStore, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}

	return &Service{
		upstream: upstream,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Login signs in against EventHub and opens a session.
//
// Parameters:
//   - ctx: request-scoped context.
//   - email, password: the user's credentials, forwarded as is.
//
// Returns:
//   - *domain.Session: the new session; its ID goes into the cookie.
//   - error: auth.ErrInvalidCredentials if EventHub refused the credentials.
//   - error: auth.ErrTokenExpired if EventHub issued an unusable token.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	const op = "service.auth.Login"

	token, user, err := s.upstream.Login(ctx, email, password)
	if err != nil {
		var se *eventhub.StatusError
		if errors.Is(err, eventhub.ErrUnauthorized) || (errors.As(err, &se) && se.Code < 500) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	expires := now.Add(s.cfg.SessionTTL)

	exp, err := s.tokenExpiry(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exp.IsZero() {
		if !exp.After(now) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}
		if exp.Before(expires) {
			expires = exp
		}
	}

	sess := domain.Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      *user,
		ExpiresAt: expires,
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &sess, nil
}

// Load returns the session for id.
//
// Returns:
//   - error: auth.ErrNoSession if the session is unknown or has expired.
func (s *Service) Load(ctx context.Context, id string) (*domain.Session, error) {
	const op = "service.auth.Load"

	if id == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoSession)
	}

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrNoSession)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.now().Before(sess.ExpiresAt) {
		_ = s.sessions.Delete(ctx, id)
		return nil, fmt.Errorf("%s: %w", op, ErrNoSession)
	}

	return sess, nil
}

// Refresh reloads the user profile (points balance) from EventHub. A
// session whose token EventHub no longer accepts is dropped.
func (s *Service) Refresh(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	const op = "service.auth.Refresh"

	user, err := s.upstream.GetProfile(ctx, sess.Token)
	if err != nil {
		if errors.Is(err, eventhub.ErrUnauthorized) {
			_ = s.sessions.Delete(ctx, sess.ID)
			return nil, fmt.Errorf("%s: %w", op, ErrNoSession)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next := *sess
	next.User = *user

	if err := s.sessions.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &next, nil
}

func (s *Service) Logout(ctx context.Context, id string) error {
	const op = "service.auth.Logout"

	if id == "" {
		return nil
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// tokenExpiry returns the exp claim, or the zero time if there is none.
// Tokens that are not JWTs are accepted and simply carry no expiry.
func (s *Service) tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}

	if s.cfg.JWTSecret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
			return time.Time{}, nil
		}
	} else {
		_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			return []byte(s.cfg.JWTSecret), nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(s.now),
		)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return time.Time{}, ErrTokenExpired
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}

	return claims.ExpiresAt.Time, nil
}
