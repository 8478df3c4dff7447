package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"

	"github.com/tabletalk/tabletalk/internal/analytics"
	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/handler"
	"github.com/tabletalk/tabletalk/internal/model"
	"github.com/tabletalk/tabletalk/internal/openapi"
	"github.com/tabletalk/tabletalk/internal/pipeline"
	"github.com/tabletalk/tabletalk/internal/policy"
	"github.com/tabletalk/tabletalk/internal/server/middleware"
	"github.com/tabletalk/tabletalk/internal/service"
	"github.com/tabletalk/tabletalk/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RatePerMinute   int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		RatePerMinute:   120,
	}
}

// Deps collects everything the server serves. DB is used only for the
// readiness probe; all query traffic goes through the pipeline.
type Deps struct {
	DB       *sqlx.DB
	Catalog  *catalog.Catalog
	Policy   *policy.Policy
	Pipeline *pipeline.Pipeline
	Store    *store.Store
	Auth     *service.AuthService
	Tracker  *analytics.Tracker
	Logger   *slog.Logger
}

// Server is the top-level HTTP server. It owns the Chi router and the
// lifecycle of the listening socket; the pipeline and its collaborators are
// owned by the caller.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes and middleware wired. Call
// ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.RatePerMinute > 0 {
		r.Use(middleware.RateLimit(s.cfg.RatePerMinute))
	}

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", s.handleOpenAPI)

	authHandler := handler.NewAuthHandler(s.deps.Auth, s.deps.Policy)
	queryHandler := handler.NewQueryHandler(s.deps.Pipeline, s.deps.Store)
	schemaHandler := handler.NewSchemaHandler(s.deps.Catalog, s.deps.Policy)
	savedHandler := handler.NewSavedQueryHandler(s.deps.Store, s.deps.Pipeline)
	sysHandler := handler.NewSystemHandler(s.deps.Pipeline, s.deps.Tracker)

	r.Route("/api/v1", func(r chi.Router) {
		// Token issuance is open; everything else requires a Bearer token.
		r.Post("/auth/token", authHandler.IssueToken)
		r.Get("/auth/roles", authHandler.ListRoles)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.Auth))
			if s.cfg.RatePerMinute > 0 {
				r.Use(middleware.RateLimitByUser(s.cfg.RatePerMinute))
			}

			r.Post("/query", queryHandler.Ask)
			r.Post("/query/export", queryHandler.Export)
			r.Get("/schema", schemaHandler.Browse)

			r.Get("/saved-queries", savedHandler.List)
			r.Post("/saved-queries", savedHandler.Create)
			r.Get("/saved-queries/{id}", savedHandler.Get)
			r.Post("/saved-queries/{id}/run", savedHandler.Run)
			r.Delete("/saved-queries/{id}", savedHandler.Delete)

			r.Get("/cache/stats", sysHandler.CacheStats)

			// Operational endpoints are admin-only.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))

				r.Post("/cache/clear", sysHandler.CacheClear)
				r.Get("/logs", queryHandler.Logs)
				r.Get("/analytics/dashboard", sysHandler.Dashboard)
				r.Get("/analytics/slowest", sysHandler.Slowest)
			})
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the target database is
// reachable, or 503 when it is not.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK

	if err := s.deps.DB.PingContext(r.Context()); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{"status": status})
}

// handleOpenAPI serves the API document, with table component schemas filled
// in from the current catalog snapshot.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	var tables []model.Table
	if snap, err := s.deps.Catalog.Snapshot(r.Context()); err == nil {
		for _, t := range snap.Tables {
			tables = append(tables, t)
		}
		sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	}

	baseURL := "http://" + r.Host
	if r.TLS != nil {
		baseURL = "https://" + r.Host
	}
	doc := openapi.Generate(baseURL, tables)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(doc)
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
