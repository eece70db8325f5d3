package auth

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/models"
	"github.com/stagecal/stagecal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", 0, f.err
	}
	return "fresh-" + refreshToken, 3600, nil
}

var guardNow = time.Unix(1_800_000_000, 0)

func newTestGuard(t *testing.T, r Refresher) (*Guard, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	g := NewGuard(s, r, 0, nil, nil)
	g.now = func() time.Time { return guardNow }
	return g, s
}

// credsWithRemaining builds credentials that have the given lifetime left at guardNow.
func credsWithRemaining(remaining time.Duration, refreshToken string) *models.Credentials {
	return &models.Credentials{
		AccessToken:  "old",
		RefreshToken: refreshToken,
		ExpiresIn:    3600,
		IssuedAt:     guardNow.Unix() - 3600 + int64(remaining.Seconds()),
		APIDomain:    "https://www.zohoapis.com",
	}
}

func TestGuardMissingSession(t *testing.T) {
	g, _ := newTestGuard(t, &fakeRefresher{})

	_, err := g.Ensure(context.Background(), "")
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)

	_, err = g.Ensure(context.Background(), "unknown")
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestGuardFreshTokenSkipsRefresh(t *testing.T) {
	r := &fakeRefresher{}
	g, s := newTestGuard(t, r)
	require.NoError(t, s.PutCredentials(context.Background(), "sess", credsWithRemaining(301*time.Second, "rt")))

	creds, err := g.Ensure(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, "old", creds.AccessToken)
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestGuardRefreshesNearExpiry(t *testing.T) {
	for _, remaining := range []time.Duration{300 * time.Second, 10 * time.Second, -time.Hour} {
		r := &fakeRefresher{}
		g, s := newTestGuard(t, r)
		require.NoError(t, s.PutCredentials(context.Background(), "sess", credsWithRemaining(remaining, "rt")))

		creds, err := g.Ensure(context.Background(), "sess")
		require.NoError(t, err, "remaining %s", remaining)
		assert.Equal(t, int32(1), r.calls.Load())
		assert.Equal(t, "fresh-rt", creds.AccessToken)
		assert.Equal(t, guardNow.Unix(), creds.IssuedAt)
		assert.Equal(t, int64(3600), creds.ExpiresIn)
		assert.Equal(t, "rt", creds.RefreshToken)

		stored, err := s.GetCredentials(context.Background(), "sess")
		require.NoError(t, err)
		assert.Equal(t, creds, stored)
	}
}

func TestGuardSingleRefreshUnderConcurrency(t *testing.T) {
	r := &fakeRefresher{delay: 50 * time.Millisecond}
	g, s := newTestGuard(t, r)
	require.NoError(t, s.PutCredentials(context.Background(), "sess", credsWithRemaining(time.Minute, "rt")))

	var wg sync.WaitGroup
	tokens := make([]string, 16)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creds, err := g.Ensure(context.Background(), "sess")
			if assert.NoError(t, err) {
				tokens[i] = creds.AccessToken
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "fresh-rt", tok)
	}
}

func TestGuardWithoutRefreshTokenExpiresSession(t *testing.T) {
	r := &fakeRefresher{}
	g, s := newTestGuard(t, r)
	require.NoError(t, s.PutCredentials(context.Background(), "sess", credsWithRemaining(0, "")))

	_, err := g.Ensure(context.Background(), "sess")
	assert.ErrorIs(t, err, errors.ErrSessionExpired)
	assert.Equal(t, int32(0), r.calls.Load())

	stored, err := s.GetCredentials(context.Background(), "sess")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestGuardRefreshFailureExpiresSession(t *testing.T) {
	r := &fakeRefresher{err: stderrors.New("invalid_code")}
	g, s := newTestGuard(t, r)
	require.NoError(t, s.PutCredentials(context.Background(), "sess", credsWithRemaining(0, "rt")))

	_, err := g.Ensure(context.Background(), "sess")
	assert.ErrorIs(t, err, errors.ErrSessionExpired)
	assert.True(t, errors.IsAuth(err))

	_, err = g.Ensure(context.Background(), "sess")
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestGuardRefreshSurvivesCancelledCaller(t *testing.T) {
	r := &fakeRefresher{}
	g, s := newTestGuard(t, r)
	require.NoError(t, s.PutCredentials(context.Background(), "sess", credsWithRemaining(0, "rt")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	creds, err := g.Ensure(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "fresh-rt", creds.AccessToken)
}

func TestGuardForget(t *testing.T) {
	g, s := newTestGuard(t, &fakeRefresher{})
	require.NoError(t, s.PutCredentials(context.Background(), "sess", credsWithRemaining(time.Hour, "rt")))

	require.NoError(t, g.Forget(context.Background(), "sess"))
	_, err := g.Ensure(context.Background(), "sess")
	assert.ErrorIs(t, err, errors.ErrUnauthenticated)
}
