package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagecal/stagecal/internal/auth"
	"github.com/stagecal/stagecal/internal/calendar"
	"github.com/stagecal/stagecal/internal/config"
	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/metrics"
	"github.com/stagecal/stagecal/internal/session"
)

// Deps wires a Server. Metrics and Logger are optional.
type Deps struct {
	Config   *config.Config
	Service  *calendar.Service
	Guard    *auth.Guard
	OAuth    auth.Provider
	Sessions session.Store
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	// Auditor defaults to audit lines on Logger.
	Auditor logging.Auditor
	// Closers are closed after the HTTP server has drained.
	Closers []io.Closer
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	crmConfig   config.CRMConfig
	service     *calendar.Service
	guard       *auth.Guard
	oauth       auth.Provider
	sessions    session.Store
	metrics     *metrics.Metrics
	logger      *logging.Logger
	auditor     logging.Auditor
	rateLimiter *IPRateLimiter
	origins     *originList
	closers     []io.Closer
	startedAt   time.Time

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(d Deps) *Server {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}

	m := d.Metrics
	if m == nil {
		m = metrics.NewMetrics("stagecal")
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.WithLevel(logging.ParseLevel(cfg.Server.LogLevel)))
	}

	requestsPerMinute := cfg.API.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 600
	}
	burst := cfg.API.RateLimit.Burst
	if burst <= 0 {
		burst = 60
	}

	server := &Server{
		router:      gin.New(),
		config:      cfg.Server,
		apiConfig:   cfg.API,
		crmConfig:   cfg.CRM,
		service:     d.Service,
		guard:       d.Guard,
		oauth:       d.OAuth,
		sessions:    d.Sessions,
		metrics:     m,
		logger:      logger,
		auditor:     d.Auditor,
		rateLimiter: newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst),
		origins:     &originList{},
		closers:     d.Closers,
		startedAt:   time.Now(),
	}
	if server.auditor == nil {
		server.auditor = logging.NewLogAuditor(logger)
	}
	server.origins.set(cfg.API.CORS.Origins)
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	if cfg.API.CORS.Enabled {
		server.router.Use(corsMiddleware(server.origins, cfg.API.CORS.Methods))
	}
	server.router.Use(rateLimitMiddleware(server.rateLimiter))
	server.router.Use(bodyLimitMiddleware(cfg.API.BodyLimitBytes))
	server.router.Use(metrics.Middleware(m, logger))
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		c.Header("X-Correlation-ID", correlationID)

		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		// Use the final request context so the session id set by the
		// guard is included.
		logger.InfoWithContext(c.Request.Context(), "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/health", s.handleHealth)

	// OAuth flow
	s.router.GET("/api/login", s.handleLogin)
	s.router.GET("/oauth-callback", s.handleOAuthCallback)
	s.router.GET("/api/logout", s.handleLogout)

	cookie := s.apiConfig.Session.CookieName
	requireSession := sessionGuard(s.guard, cookie, true, s.logger, s.auditor)
	localSession := requireSession
	if s.apiConfig.LocalAuth == config.LocalAuthOptional {
		localSession = sessionGuard(s.guard, cookie, false, s.logger, s.auditor)
	}

	crmGroup := s.router.Group("/api")
	crmGroup.Use(requireSession)
	{
		crmGroup.GET("/zoho/events", s.handleZohoEvents)
		crmGroup.GET("/zoho/event/:id", s.handleZohoEvent)
		crmGroup.GET("/zoho/master", s.handleZohoMaster)
		crmGroup.GET("/events/all", s.handleAllEvents)
		crmGroup.GET("/events/calendar.ics", s.handleExportICS)
	}

	localGroup := s.router.Group("/api")
	localGroup.Use(auditMutations(s.auditor), localSession)
	{
		localGroup.POST("/event", s.handleCreateEvent)
		localGroup.GET("/events", s.handleListEvents)
		localGroup.GET("/event/:id", s.handleGetEvent)
		localGroup.PATCH("/event/:id", s.handleUpdateEvent)
		localGroup.DELETE("/event/:id", s.handleDeleteEvent)

		localGroup.POST("/status", s.handleCreateStatus)
		localGroup.GET("/statuses", s.handleListStatuses)
		localGroup.GET("/status/:id", s.handleGetStatus)
		localGroup.PATCH("/status/:id", s.handleUpdateStatus)
		localGroup.DELETE("/status/:id", s.handleDeleteStatus)
	}
}

// ApplyConfig takes over the settings that can change without a restart:
// log level and CORS origins.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.logger.SetLevel(logging.ParseLevel(cfg.Server.LogLevel))
	s.origins.set(cfg.API.CORS.Origins)
	s.auditor.Audit(context.Background(), logging.NewAuditEvent(logging.ConfigChange, "reload", logging.StatusSuccess).
		WithDetails(map[string]interface{}{"log_level": cfg.Server.LogLevel, "cors_origins": cfg.API.CORS.Origins}))
	s.logger.Info("configuration reloaded", "log_level", cfg.Server.LogLevel, "cors_origins", len(cfg.API.CORS.Origins))
}

// Addr returns host:port the server listens on.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)
}

// Run starts the HTTP or HTTPS server based on TLS configuration. It
// returns nil once Shutdown has been called, including when Shutdown ran
// before Run got to listen.
func (s *Server) Run() error {
	addr := s.Addr()

	var srv *http.Server
	if s.config.TLS.Enabled {
		var err error
		srv, err = NewHTTPSServer(addr, s.config.TLS.CertFile, s.config.TLS.KeyFile, s.config.TLS.MinVersion, s.router)
		if err != nil {
			return &errors.ErrServerStart{Addr: addr, Err: err}
		}
	} else {
		srv = NewHTTPServer(addr, s.router)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.httpServer = srv
	s.mu.Unlock()

	var err error
	if s.config.TLS.Enabled {
		s.logger.Info("starting HTTPS server", "addr", addr, "min_version", s.config.TLS.MinVersion)
		err = srv.ListenAndServeTLS("", "")
	} else {
		s.logger.Info("starting HTTP server", "addr", addr)
		err = srv.ListenAndServe()
	}
	if err := ignoreClosed(err); err != nil {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

func ignoreClosed(err error) error {
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server, then closes the registered closers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	s.mu.Lock()
	s.stopped = true
	srv := s.httpServer
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
			errs = append(errs, &errors.ErrServerShutdown{Err: err})
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"crm_configured": s.crmConfig.Ready() == nil,
	})
}
