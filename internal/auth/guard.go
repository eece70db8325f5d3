package auth

import (
	"context"
	"time"

	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/metrics"
	"github.com/stagecal/stagecal/internal/models"
	"github.com/stagecal/stagecal/internal/session"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshThreshold is how close to expiry a token gets refreshed.
const DefaultRefreshThreshold = 300 * time.Second

// Guard runs before every protected operation. It returns usable
// credentials for the session, refreshing them when they are about to
// expire, or destroys the session when that is impossible.
type Guard struct {
	store     session.Store
	refresher Refresher
	threshold time.Duration
	logger    *logging.Logger
	metrics   *metrics.Metrics
	flights   singleflight.Group
	now       func() time.Time
}

// NewGuard creates a guard. A non-positive threshold uses the default.
func NewGuard(store session.Store, refresher Refresher, threshold time.Duration, logger *logging.Logger, m *metrics.Metrics) *Guard {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Guard{
		store:     store,
		refresher: refresher,
		threshold: threshold,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Ensure returns fresh credentials for sessionID.
//
// Errors: errors.ErrUnauthenticated when the session has no credentials,
// errors.ErrSessionExpired when a needed refresh failed (the credentials
// are deleted first), or a store error.
func (g *Guard) Ensure(ctx context.Context, sessionID string) (*models.Credentials, error) {
	if sessionID == "" {
		return nil, errors.ErrUnauthenticated
	}

	creds, err := g.store.GetCredentials(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, errors.ErrUnauthenticated
	}
	if creds.Remaining(g.now()) > g.threshold {
		return creds, nil
	}

	// Concurrent requests of one session share a single refresh. The
	// refresh outlives a cancelled caller so the session is not destroyed
	// because one client went away.
	v, err, _ := g.flights.Do(sessionID, func() (interface{}, error) {
		return g.refresh(context.WithoutCancel(ctx), sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Credentials), nil
}

func (g *Guard) refresh(ctx context.Context, sessionID string) (*models.Credentials, error) {
	// Re-read: a previous flight may already have refreshed or logged out.
	creds, err := g.store.GetCredentials(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, errors.ErrUnauthenticated
	}
	now := g.now()
	if creds.Remaining(now) > g.threshold {
		return creds, nil
	}

	if creds.RefreshToken == "" || g.refresher == nil {
		g.logger.WarnWithContext(ctx, "no refresh token, forcing re-authentication")
		g.metrics.RecordTokenRefresh("missing")
		return nil, g.expire(ctx, sessionID)
	}

	g.logger.InfoWithContext(ctx, "access token near expiry, refreshing", "remaining_seconds", int64(creds.Remaining(now).Seconds()))
	accessToken, expiresIn, err := g.refresher.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		g.logger.WarnWithContext(ctx, "token refresh failed, forcing re-authentication", "error", err)
		g.metrics.RecordTokenRefresh("failure")
		return nil, g.expire(ctx, sessionID)
	}

	next := creds.Refreshed(accessToken, expiresIn, g.now())
	if err := g.store.PutCredentials(ctx, sessionID, next); err != nil {
		return nil, err
	}
	g.metrics.RecordTokenRefresh("success")
	return next, nil
}

func (g *Guard) expire(ctx context.Context, sessionID string) error {
	if err := g.store.DeleteCredentials(ctx, sessionID); err != nil {
		g.logger.ErrorWithContext(ctx, "failed to delete expired session", "error", err)
	}
	return errors.ErrSessionExpired
}

// Forget deletes the session's credentials (logout).
func (g *Guard) Forget(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return g.store.DeleteCredentials(ctx, sessionID)
}
