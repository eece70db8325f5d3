// Package auth implements the Zoho OAuth code exchange and refresh, and the
// guard that keeps a session's access token fresh.
package auth

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/stagecal/stagecal/internal/config"
	"github.com/stagecal/stagecal/internal/models"
	"golang.org/x/oauth2"
)

// DefaultScope grants access to every CRM module.
const DefaultScope = "ZohoCRM.modules.ALL"

// Provider is the OAuth surface the HTTP layer and the guard depend on.
type Provider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*models.Credentials, error)
	Refresher
}

// Refresher trades a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresIn int64, err error)
}

// ZohoOAuth implements Provider against the Zoho accounts server.
type ZohoOAuth struct {
	cfg        *oauth2.Config
	apiURL     string
	httpClient *http.Client
	now        func() time.Time
}

// NewZohoOAuth builds the OAuth client. httpClient may be nil.
func NewZohoOAuth(c config.CRMConfig, httpClient *http.Client) *ZohoOAuth {
	accounts := strings.TrimRight(c.AccountsURL, "/")
	scope := c.Scope
	if scope == "" {
		scope = DefaultScope
	}
	return &ZohoOAuth{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURI,
			Scopes:       []string{scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   accounts + "/oauth/v2/auth",
				TokenURL:  accounts + "/oauth/v2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     strings.TrimRight(c.APIURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
	}
}

// AuthURL returns the consent page URL requesting offline access.
func (z *ZohoOAuth) AuthURL(state string) string {
	return z.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a full credential record.
func (z *ZohoOAuth) Exchange(ctx context.Context, code string) (*models.Credentials, error) {
	tok, err := z.cfg.Exchange(z.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	now := z.now()
	creds := &models.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok, now),
		IssuedAt:     now.Unix(),
		APIDomain:    z.apiURL,
	}
	if domain, ok := tok.Extra("api_domain").(string); ok && domain != "" {
		creds.APIDomain = strings.TrimRight(domain, "/")
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("token response: %w", err)
	}
	return creds, nil
}

// Refresh obtains a new access token. The refresh token itself is kept by
// the caller; Zoho does not rotate it.
func (z *ZohoOAuth) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	if refreshToken == "" {
		return "", 0, fmt.Errorf("refresh token is empty")
	}
	tok, err := z.cfg.TokenSource(z.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", 0, fmt.Errorf("refresh access token: %w", err)
	}
	return tok.AccessToken, expiresIn(tok, z.now()), nil
}

func (z *ZohoOAuth) withClient(ctx context.Context) context.Context {
	if z.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, z.httpClient)
}

// expiresIn prefers the raw expires_in field and falls back to the parsed
// expiry. Zoho tokens live one hour when neither is usable.
func expiresIn(tok *oauth2.Token, now time.Time) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return int64(v)
		}
	case string:
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil && n > 0 {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		if secs := int64(math.Round(tok.Expiry.Sub(now).Seconds())); secs > 0 {
			return secs
		}
	}
	return 3600
}
