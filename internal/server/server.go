// Package server provides the HTTP server and routing for PortVault.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/midtierhuman/PortVault-sub000/internal/config"
	"github.com/midtierhuman/PortVault-sub000/internal/di"
	"github.com/midtierhuman/PortVault-sub000/internal/httpapi"
	corporateactionshandlers "github.com/midtierhuman/PortVault-sub000/internal/modules/corporateactions/handlers"
	holdingshandlers "github.com/midtierhuman/PortVault-sub000/internal/modules/holdings/handlers"
	instrumentshandlers "github.com/midtierhuman/PortVault-sub000/internal/modules/instruments/handlers"
	portfoliohandlers "github.com/midtierhuman/PortVault-sub000/internal/modules/portfolios/handlers"
	transactionshandlers "github.com/midtierhuman/PortVault-sub000/internal/modules/transactions/handlers"
	"github.com/midtierhuman/PortVault-sub000/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Port      int
	DevMode   bool
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Container.DB,
			cfg.Container.Scheduler,
			cfg.Container.BackupService,
		),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Websocket connections outlive any write deadline; API routes are bounded by middleware.Timeout
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httpapi.HeaderUserID, httpapi.HeaderAdmin},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(devMode bool) {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// The event stream is long-lived and must stay outside the timeout and compression group
		eventsStream := NewEventsStreamHandler(s.container.EventBus, s.log)
		r.With(httpapi.RequireAdmin(s.log)).Get("/events/ws", eventsStream.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !devMode {
				r.Use(middleware.Compress(5))
			}

			r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

			r.Group(func(r chi.Router) {
				r.Use(httpapi.RequireUser(s.log))
				s.setupPortfolioRoutes(r)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(httpapi.RequireAdmin(s.log))
				s.setupAdminRoutes(r)
			})
		})
	})
}

// setupPortfolioRoutes mounts user-facing modules under their portfolio
func (s *Server) setupPortfolioRoutes(r chi.Router) {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.ImportRateLimit), s.cfg.ImportRateLimitBurst)

	holdingsHandler := holdingshandlers.NewHandler(s.container.HoldingsService, s.log)
	transactionsHandler := transactionshandlers.NewHandler(s.container.TransactionService, limiter, s.log)

	portfoliohandlers.NewHandler(s.container.PortfolioService, s.log).RegisterRoutes(r,
		holdingsHandler.RegisterRoutes,
		transactionsHandler.RegisterRoutes,
	)
}

// setupAdminRoutes mounts reference data and maintenance routes
func (s *Server) setupAdminRoutes(r chi.Router) {
	instrumentshandlers.NewHandler(s.container.InstrumentService, s.log).RegisterRoutes(r)
	corporateactionshandlers.NewHandler(s.container.CorporateActionService, s.log).RegisterRoutes(r)
	holdingshandlers.NewHandler(s.container.HoldingsService, s.log).RegisterAdminRoutes(r)

	r.Get("/jobs", s.handleListJobs)
	r.Post("/jobs/{name}", s.handleRunJob)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, s.log, http.StatusOK, map[string]interface{}{
		"jobs": s.container.Scheduler.JobNames(),
	})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.container.Scheduler.RunNow(name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			httpapi.WriteError(w, s.log, http.StatusNotFound, err.Error())
			return
		}
		s.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		httpapi.WriteError(w, s.log, http.StatusInternalServerError, "job failed")
		return
	}

	httpapi.WriteJSON(w, s.log, http.StatusOK, map[string]string{
		"status": "completed",
		"job":    name,
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
