package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bucketd/bucketd/internal/bucket"
	"github.com/bucketd/bucketd/internal/config"
	"github.com/bucketd/bucketd/internal/httputil"
	"github.com/bucketd/bucketd/internal/notify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the main HTTP server for bucketd.
type Server struct {
	cfg         *config.Config
	router      *chi.Mux
	http        *http.Server
	logger      *slog.Logger
	registry    *bucket.Registry
	signer      *bucket.URLSigner
	notifier    *notify.Notifier
	maxFileSize int64
}

// New creates a new Server with middleware and routes configured.
func New(cfg *config.Config, logger *slog.Logger, registry *bucket.Registry, signer *bucket.URLSigner, notifier *notify.Notifier) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))

	s := &Server{
		cfg:         cfg,
		router:      r,
		logger:      logger,
		registry:    registry,
		signer:      signer,
		notifier:    notifier,
		maxFileSize: cfg.Storage.MaxFileSizeBytes(),
	}

	r.Get("/health", s.handleHealth)

	// Download path for locally stored files; this is what LocalBackend
	// URLs point at.
	r.Get("/_uploads/{bucket}/*", s.handleServe)

	r.Route("/api", func(r chi.Router) {
		r.Get("/buckets", s.handleListBuckets)
		r.Route("/buckets/{bucket}", func(r chi.Router) {
			r.Post("/files", s.handleUpload)
			r.Delete("/files/*", s.handleDelete)
			r.Get("/urls/*", s.handleURL)
		})
	})

	return s
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: s.router,
	}

	s.logger.Info("server starting", "address", s.cfg.Address())
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
