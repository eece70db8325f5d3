package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Local auth modes for the local CRUD routes.
const (
	LocalAuthRequired = "required"
	LocalAuthOptional = "optional"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config represents the complete application configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	CRM        CRMConfig        `yaml:"crm"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Store      StoreConfig      `yaml:"store"`
	ChangeFeed ChangeFeedConfig `yaml:"changefeed"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains HTTP surface configuration.
type APIConfig struct {
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	BodyLimitBytes int64           `yaml:"body_limit_bytes"`
	CORS           CORSConfig      `yaml:"cors"`
	// LocalAuth is "required" (every protected route runs the token guard)
	// or "optional" (local CRUD runs it only when a session cookie exists).
	LocalAuth string        `yaml:"local_auth"`
	Session   SessionConfig `yaml:"session"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// SessionConfig controls the session cookie and idle expiry.
type SessionConfig struct {
	CookieName    string        `yaml:"cookie_name"`
	Secure        bool          `yaml:"secure"`
	TTL           time.Duration `yaml:"ttl"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// CRMConfig describes the Zoho CRM OAuth client and fetch tuning.
type CRMConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AccountsURL  string `yaml:"accounts_url"`
	// APIURL is used when the token response carries no api_domain.
	APIURL           string        `yaml:"api_url"`
	Scope            string        `yaml:"scope"`
	FrontendRedirect string        `yaml:"frontend_redirect"`
	VerifyState      bool          `yaml:"verify_state"`
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
	// EnrichConcurrency bounds simultaneous enrichment calls per batch.
	EnrichConcurrency int           `yaml:"enrich_concurrency"`
	MaxPages          int           `yaml:"max_pages"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// NotifierConfig shapes the follow-up tasks written to the CRM.
type NotifierConfig struct {
	Enabled  bool          `yaml:"enabled"`
	DueIn    time.Duration `yaml:"due_in"`
	Priority string        `yaml:"priority"`
	Status   string        `yaml:"status"`
	Module   string        `yaml:"module"`
}

// StoreConfig selects the local persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// ChangeFeedConfig configures where local mutations are announced.
type ChangeFeedConfig struct {
	NATS     NATSConfig     `yaml:"nats"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// NATSConfig enables publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// TelegramConfig contains Telegram bot configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyPreParseDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// applyPreParseDefaults sets values whose zero value is meaningful in YAML
// (booleans) before the file is decoded over them.
func applyPreParseDefaults(cfg *Config) {
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.HTTPPort = 3000
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.LogLevel = "info"
	cfg.CRM.VerifyState = true
	cfg.Notifier.Enabled = true
	cfg.API.CORS.Enabled = true
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = "1"
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.CRM.Validate(); err != nil {
		return fmt.Errorf("crm: %w", err)
	}

	if err := c.Notifier.Validate(); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if err := c.ChangeFeed.Validate(); err != nil {
		return fmt.Errorf("changefeed: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
		if s.TLS.MinVersion != "" && s.TLS.MinVersion != "1.2" && s.TLS.MinVersion != "1.3" {
			return fmt.Errorf("tls min_version must be either \"1.2\" or \"1.3\"")
		}
		if s.TLS.MinVersion == "" {
			s.TLS.MinVersion = "1.3"
		}
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.RateLimit.RequestsPerMinute < 0 || a.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if a.RateLimit.RequestsPerMinute == 0 {
		a.RateLimit.RequestsPerMinute = 600
	}
	if a.RateLimit.Burst == 0 {
		a.RateLimit.Burst = 60
	}
	if a.BodyLimitBytes <= 0 {
		a.BodyLimitBytes = 1 << 20
	}
	if len(a.CORS.Methods) == 0 {
		a.CORS.Methods = []string{"GET", "POST", "PATCH", "DELETE"}
	}
	switch a.LocalAuth {
	case "":
		a.LocalAuth = LocalAuthRequired
	case LocalAuthRequired, LocalAuthOptional:
	default:
		return fmt.Errorf("local_auth must be %q or %q", LocalAuthRequired, LocalAuthOptional)
	}
	if a.Session.CookieName == "" {
		a.Session.CookieName = "stagecal_session"
	}
	if a.Session.TTL < 0 {
		return fmt.Errorf("session ttl must not be negative")
	}
	if a.Session.TTL == 0 {
		a.Session.TTL = 30 * 24 * time.Hour
	}
	if a.Session.PurgeInterval <= 0 {
		a.Session.PurgeInterval = time.Hour
	}
	return nil
}

// Validate fills CRM defaults. Credentials are checked by Ready.
func (c *CRMConfig) Validate() error {
	if c.AccountsURL == "" {
		c.AccountsURL = "https://accounts.zoho.com"
	}
	if c.APIURL == "" {
		c.APIURL = "https://www.zohoapis.com"
	}
	for name, raw := range map[string]string{"accounts_url": c.AccountsURL, "api_url": c.APIURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", name)
		}
	}
	c.AccountsURL = strings.TrimRight(c.AccountsURL, "/")
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.Scope == "" {
		c.Scope = "ZohoCRM.modules.ALL"
	}
	if c.FrontendRedirect == "" {
		c.FrontendRedirect = "http://localhost:4200/calendar"
	}
	if c.RefreshThreshold < 0 {
		return fmt.Errorf("refresh_threshold must not be negative")
	}
	if c.RefreshThreshold == 0 {
		c.RefreshThreshold = 300 * time.Second
	}
	if c.EnrichConcurrency < 0 {
		return fmt.Errorf("enrich_concurrency must not be negative")
	}
	if c.EnrichConcurrency == 0 {
		c.EnrichConcurrency = 8
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 5
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	return nil
}

// Ready reports whether the OAuth client is fully configured.
func (c *CRMConfig) Ready() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("crm %s not configured", strings.Join(missing, ", "))
	}
	return nil
}

// Validate fills notifier defaults.
func (n *NotifierConfig) Validate() error {
	if n.DueIn < 0 {
		return fmt.Errorf("due_in must not be negative")
	}
	if n.DueIn == 0 {
		n.DueIn = 48 * time.Hour
	}
	if n.Priority == "" {
		n.Priority = "Alto"
	}
	if n.Status == "" {
		n.Status = "No iniciado"
	}
	if n.Module == "" {
		n.Module = "Deals"
	}
	return nil
}

// Validate checks the store driver.
func (s *StoreConfig) Validate() error {
	if s.Driver == "" {
		s.Driver = DriverSQLite
	}
	switch s.Driver {
	case DriverSQLite:
		if s.Path == "" {
			s.Path = "./data/stagecal.db"
		}
	case DriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	return nil
}

// Validate checks change feed sinks.
func (c *ChangeFeedConfig) Validate() error {
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "stagecal"
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram bot_token is required when enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram chat_id is required when enabled")
		}
	}
	return nil
}

// ApplyEnv overlays the plain environment variables used by earlier
// deployments (BACKEND_PORT, CLIENT_ID, ZOHO_API_URL...) onto cfg.
func ApplyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Server.Host, "BACKEND_IP")
	if v := os.Getenv("BACKEND_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	setString(&cfg.CRM.ClientID, "CLIENT_ID")
	setString(&cfg.CRM.ClientSecret, "CLIENT_SECRET")
	setString(&cfg.CRM.RedirectURI, "REDIRECT_URI")
	setString(&cfg.CRM.AccountsURL, "ZOHO_ACCOUNTS_URL")
	setString(&cfg.CRM.APIURL, "ZOHO_API_URL")
	if ip, port := os.Getenv("FRONTEND_IP"), os.Getenv("FRONTEND_PORT"); ip != "" && port != "" {
		cfg.CRM.FrontendRedirect = fmt.Sprintf("http://%s:%s/calendar", ip, port)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.API.CORS.Origins = origins
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.Driver = DriverPostgres
		cfg.Store.DSN = v
	}
	setString(&cfg.ChangeFeed.NATS.URL, "NATS_URL")
}
