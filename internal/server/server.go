// Package server exposes the follow-up engine over HTTP and a websocket
// change feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/shepherd/internal/followup"
	"github.com/dukerupert/shepherd/internal/handler"
	"github.com/dukerupert/shepherd/internal/middleware"
	"github.com/dukerupert/shepherd/internal/theme"
	ws "github.com/dukerupert/shepherd/internal/websocket"
)

type Server struct {
	hub         *ws.Hub
	followupH   *handler.FollowupHandler
	themeH      *handler.ThemeHandler
	token       string
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New wires handlers around engine. A non-empty token is required as a
// bearer token on every route except /health.
func New(engine *followup.Engine, catalog *theme.Catalog, token string, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	return &Server{
		hub:       hub,
		followupH: handler.NewFollowupHandler(engine, hub, logger.With("component", "followup")),
		themeH:    handler.NewThemeHandler(catalog),
		token:     token,
		// Writes hit PCO and Notion, so keep them to a trickle per client.
		rateLimiter: middleware.NewRateLimiter(rate.Every(6*time.Second), 10),
		logger:      logger,
	}
}

// Hub returns the websocket hub for broadcasting changes made outside HTTP.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthHandler)

	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	outerMux.Handle("/", middleware.RequireToken(s.token)(apiMux))

	return middleware.RequestID(middleware.RequestLogger(s.logger.With("component", "http"))(outerMux))
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	limited := middleware.RateLimit(s.rateLimiter)

	mux.HandleFunc("GET /api/followups/today", s.followupH.Today)
	mux.HandleFunc("GET /api/followups/next", s.followupH.Next)
	mux.HandleFunc("GET /api/followups/summary", s.followupH.Summary)
	mux.Handle("POST /api/followups/complete", limited(http.HandlerFunc(s.followupH.Complete)))
	mux.Handle("POST /api/followups/generate", limited(http.HandlerFunc(s.followupH.Generate)))

	mux.HandleFunc("GET /api/themes", s.themeH.List)
	mux.HandleFunc("GET /api/themes/{month}", s.themeH.Get)

	mux.HandleFunc("GET /ws", ws.Handler(s.hub))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go s.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", "http://localhost:"+port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup(time.Hour)
		}
	}
}
