// Package session maps browser sessions to CRM credentials.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/models"
)

// Store holds one credential record per session id. GetCredentials returns
// (nil, nil) for an unknown session. PutCredentials replaces the record.
type Store interface {
	GetCredentials(ctx context.Context, sessionID string) (*models.Credentials, error)
	PutCredentials(ctx context.Context, sessionID string, creds *models.Credentials) error
	DeleteCredentials(ctx context.Context, sessionID string) error
}

// Purger removes sessions not written since the cutoff.
type Purger interface {
	PurgeSessions(ctx context.Context, before time.Time) (int, error)
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// StartJanitor purges idle sessions every interval until ctx is done.
func StartJanitor(ctx context.Context, p Purger, ttl, interval time.Duration, logger *logging.Logger) {
	if p == nil || ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = logging.Discard()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := p.PurgeSessions(ctx, time.Now().Add(-ttl))
				if err != nil {
					logger.Warn("session purge failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("purged idle sessions", "count", n)
				}
			}
		}
	}()
}
