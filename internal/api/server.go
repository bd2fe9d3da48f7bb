package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goodtune/usagereporter/internal/apps"
	"github.com/goodtune/usagereporter/internal/pipeline"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/rs/zerolog"
)

// Reporter runs the report pipeline.
type Reporter interface {
	Run(ctx context.Context, trigger pipeline.Trigger) pipeline.Result
	SendTest(ctx context.Context) pipeline.Result
	Preview(ctx context.Context) (*pipeline.Preview, error)
}

// SettingsService reads and edits the report settings.
type SettingsService interface {
	Read(ctx context.Context) (storage.ReportSettings, error)
	SetDestinationURL(ctx context.Context, raw string) (storage.ReportSettings, error)
	SetSendEnabled(ctx context.Context, enabled bool) (storage.ReportSettings, error)
	SetSendTime(ctx context.Context, hour, minute int) (storage.ReportSettings, error)
	SetExcluded(ctx context.Context, ids []string) (storage.ReportSettings, error)
	AddExcluded(ctx context.Context, id string) (storage.ReportSettings, error)
	RemoveExcluded(ctx context.Context, id string) (storage.ReportSettings, error)
}

// OutcomeReader returns the latest send outcome.
type OutcomeReader interface {
	Current(ctx context.Context) (storage.SendOutcome, error)
}

// Schedule reports when the daily report fires next.
type Schedule interface {
	NextFire(ctx context.Context) (time.Time, bool, error)
}

// ActivityRecorder receives foreground heartbeats.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, applicationID string) error
}

// Catalog lists known applications and resolves display names.
type Catalog interface {
	List() []apps.Application
	Resolve(id string) string
}

// Dependencies are the services behind the API.
type Dependencies struct {
	Reporter Reporter
	Settings SettingsService
	Outcomes OutcomeReader
	Schedule Schedule
	Activity ActivityRecorder
	Catalog  Catalog
}

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
}

// Server is the HTTP control API.
type Server struct {
	config   Config
	deps     Dependencies
	router   chi.Router
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config, deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		config: cfg,
		deps:   deps,
		router: chi.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(RequestID)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/send", s.handleSend)
		r.Post("/send/test", s.handleSendTest)
		r.Get("/usage/today", s.handleUsageToday)
		r.Get("/apps", s.handleApps)
		r.Post("/activity", s.handleActivity)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/webhook", s.handleSetWebhook)
			r.Put("/enabled", s.handleSetEnabled)
			r.Put("/time", s.handleSetTime)
			r.Put("/exclusions", s.handleSetExclusions)
			r.Post("/exclusions/{id}", s.handleAddExclusion)
			r.Delete("/exclusions/{id}", s.handleRemoveExclusion)
		})
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-existing listener (for systemd socket activation).
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	if s.listener != nil {
		s.logger.Info().
			Str("addr", s.listener.Addr().String()).
			Msg("Starting API server (socket activated)")
	} else {
		s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")
		ln, err := net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.config.ListenAddr, err)
		}
		s.listener = ln
	}

	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}

	return nil
}
