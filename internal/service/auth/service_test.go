package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/eventhub"
	"github.com/kirinyoku/eventhub-checkout/internal/repository"
)

const secret = "test-secret"

type fakeUpstream struct {
	token      string
	loginErr   error
	profile    *domain.User
	profileErr error
}

func (f *fakeUpstream) Login(context.Context, string, string) (string, *domain.User, error) {
	if f.loginErr != nil {
		return "", nil, f.loginErr
	}
	return f.token, &domain.User{ID: "u-1", Email: "a@b.c", Points: 100}, nil
}

func (f *fakeUpstream) GetProfile(context.Context, string) (*domain.User, error) {
	return f.profile, f.profileErr
}

type memSessions map[string]domain.Session

func (m memSessions) Save(_ context.Context, s domain.Session) error {
	m[s.ID] = s
	return nil
}

func (m memSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	s, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m memSessions) Delete(_ context.Context, id string) error {
	delete(m, id)
	return nil
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	return tok
}

func TestLogin_SessionBoundedByTokenExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	store := memSessions{}
	svc := New(&fakeUpstream{token: signed(t, exp)}, store, Config{JWTSecret: secret})

	sess, err := svc.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "u-1", sess.User.ID)
	assert.True(t, sess.ExpiresAt.Equal(exp))
	assert.Contains(t, store, sess.ID)
}

func TestLogin_DefaultTTLForOpaqueToken(t *testing.T) {
	svc := New(&fakeUpstream{token: "opaque"}, memSessions{}, Config{})

	sess, err := svc.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), sess.ExpiresAt, time.Minute)
}

func TestLogin_Rejections(t *testing.T) {
	svc := New(&fakeUpstream{loginErr: eventhub.ErrUnauthorized}, memSessions{}, Config{})
	_, err := svc.Login(context.Background(), "a@b.c", "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	svc = New(&fakeUpstream{loginErr: &eventhub.StatusError{Code: 400}}, memSessions{}, Config{})
	_, err = svc.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	svc = New(&fakeUpstream{loginErr: &eventhub.StatusError{Code: 502}}, memSessions{}, Config{})
	_, err = svc.Login(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, eventhub.ErrUnavailable)

	expired := signed(t, time.Now().Add(-time.Minute))
	svc = New(&fakeUpstream{token: expired}, memSessions{}, Config{JWTSecret: secret})
	_, err = svc.Login(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestLoadAndLogout(t *testing.T) {
	store := memSessions{}
	svc := New(&fakeUpstream{token: "opaque"}, store, Config{})
	ctx := context.Background()

	_, err := svc.Load(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)

	sess, err := svc.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	got, err := svc.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, got.Token)

	require.NoError(t, svc.Logout(ctx, sess.ID))
	_, err = svc.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLoad_ExpiredSessionIsDropped(t *testing.T) {
	store := memSessions{"old": {ID: "old", ExpiresAt: time.Now().Add(-time.Second)}}
	svc := New(&fakeUpstream{}, store, Config{})

	_, err := svc.Load(context.Background(), "old")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.NotContains(t, store, "old")
}

func TestRefresh(t *testing.T) {
	store := memSessions{}
	up := &fakeUpstream{token: "opaque", profile: &domain.User{ID: "u-1", Points: 250}}
	svc := New(up, store, Config{})
	ctx := context.Background()

	sess, err := svc.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, int64(250), next.User.Points)
	assert.Equal(t, int64(250), store[sess.ID].User.Points)

	up.profileErr = eventhub.ErrUnauthorized
	_, err = svc.Refresh(ctx, sess)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.NotContains(t, store, sess.ID, "a rejected token ends the session")
}
