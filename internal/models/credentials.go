package models

import (
	"fmt"
	"time"
)

// Credentials is the per-session CRM credential record. It is replaced as a
// whole on exchange and refresh, never edited field by field.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresIn is the token lifetime in seconds, counted from IssuedAt.
	ExpiresIn int64 `json:"expires_in"`
	// IssuedAt is the epoch second the access token was obtained.
	IssuedAt  int64  `json:"issued_at"`
	APIDomain string `json:"api_domain"`
}

// Validate rejects partially populated records. An empty refresh token is
// allowed; such a session simply cannot be refreshed.
func (c *Credentials) Validate() error {
	if c == nil {
		return fmt.Errorf("credentials are nil")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	if c.ExpiresIn <= 0 {
		return fmt.Errorf("expires_in must be positive")
	}
	if c.IssuedAt <= 0 {
		return fmt.Errorf("issued_at is required")
	}
	if c.APIDomain == "" {
		return fmt.Errorf("api_domain is required")
	}
	return nil
}

// ExpiresAt returns the absolute expiry time.
func (c *Credentials) ExpiresAt() time.Time {
	return time.Unix(c.IssuedAt+c.ExpiresIn, 0)
}

// Remaining returns the lifetime left at now; negative once expired.
func (c *Credentials) Remaining(now time.Time) time.Duration {
	return time.Duration(c.IssuedAt+c.ExpiresIn-now.Unix()) * time.Second
}

// Refreshed returns a copy carrying a new access token issued at now. The
// refresh token and API domain are kept.
func (c *Credentials) Refreshed(accessToken string, expiresIn int64, now time.Time) *Credentials {
	next := *c
	next.AccessToken = accessToken
	next.ExpiresIn = expiresIn
	next.IssuedAt = now.Unix()
	return &next
}
