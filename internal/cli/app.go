package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stagecal/stagecal/internal/auth"
	"github.com/stagecal/stagecal/internal/calendar"
	"github.com/stagecal/stagecal/internal/changefeed"
	"github.com/stagecal/stagecal/internal/config"
	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/metrics"
	"github.com/stagecal/stagecal/internal/store"
)

// loadConfig reads .env, then the config file, falling back to defaults
// plus environment when the file is missing. --db overrides the store path.
func loadConfig() (*config.Loader, *config.Config, error) {
	config.LoadDotEnv()

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.LoadOrDefault()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	applyGlobalOverrides(cfg)
	return loader, cfg, nil
}

func applyGlobalOverrides(cfg *config.Config) {
	if globalFlags.DBPath != "" {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.Path = globalFlags.DBPath
	}
	if globalFlags.Verbose {
		cfg.Server.LogLevel = "debug"
	}
}

func newLogger(cfg *config.Config, out io.Writer) *logging.Logger {
	if out == nil {
		out = os.Stderr
	}
	return logging.NewLogger(
		logging.WithOutput(out),
		logging.WithLevel(logging.ParseLevel(cfg.Server.LogLevel)),
		logging.WithService("stagecal"),
	)
}

// buildFeed connects every configured change-feed sink. A sink that fails
// to start is logged and skipped so the API still comes up.
func buildFeed(cfg config.ChangeFeedConfig, logger *logging.Logger) *changefeed.Feed {
	var sinks changefeed.MultiPublisher

	if cfg.NATS.URL != "" {
		pub, err := changefeed.NewNATSPublisher(cfg.NATS.URL,
			nats.Name("stagecal"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			logger.Warn("nats change feed disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			sinks = append(sinks, pub)
		}
	}

	if cfg.Telegram.Enabled {
		pub, err := changefeed.NewTelegramPublisher(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Warn("telegram change feed disabled", "error", err)
		} else {
			sinks = append(sinks, pub)
		}
	}

	var pub changefeed.Publisher
	switch len(sinks) {
	case 0:
	case 1:
		pub = sinks[0]
	default:
		pub = sinks
	}
	return changefeed.NewFeed(pub, cfg.NATS.SubjectPrefix, logger)
}

// app holds the wired components shared by serve and the offline commands.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	store   store.Store
	feed    *changefeed.Feed
	oauth   *auth.ZohoOAuth
	guard   *auth.Guard
	service *calendar.Service
}

// newApp opens the store and wires the service. The CRM side is only wired
// when an OAuth client is configured.
func newApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics("stagecal"),
		store:   st,
	}
	a.feed = buildFeed(cfg.ChangeFeed, logger)

	deps := calendar.Deps{
		Events:   st,
		Statuses: st,
		Feed:     a.feed,
		Logger:   logger,
		Metrics:  a.metrics,
	}

	if err := cfg.CRM.Ready(); err != nil {
		logger.Warn("zoho crm not configured, external routes will reject requests", "reason", err)
	} else {
		client := crm.NewClient(crm.Options{
			Timeout:           cfg.CRM.RequestTimeout,
			MaxPages:          cfg.CRM.MaxPages,
			EnrichConcurrency: cfg.CRM.EnrichConcurrency,
			Logger:            logger,
			Metrics:           a.metrics,
		})
		a.oauth = auth.NewZohoOAuth(cfg.CRM, client.HTTPClient())
		deps.CRM = client
		deps.Notifier = calendar.NewNotifier(client, cfg.Notifier, logger, a.metrics)
	}

	var refresher auth.Refresher
	if a.oauth != nil {
		refresher = a.oauth
	}
	a.guard = auth.NewGuard(st, refresher, cfg.CRM.RefreshThreshold, logger, a.metrics)
	a.service = calendar.NewService(deps)
	return a, nil
}

// closers are shut down after the HTTP server drains, feed first.
func (a *app) closers() []io.Closer {
	return []io.Closer{a.feed, a.store}
}

func (a *app) Close() error {
	feedErr := a.feed.Close()
	if err := a.store.Close(); err != nil {
		return err
	}
	return feedErr
}
