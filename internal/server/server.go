// Package server exposes the timeline over HTTP and a websocket stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/config"
	"github.com/tOgg1/cheerfeed/internal/events"
	"github.com/tOgg1/cheerfeed/internal/llm"
	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/quota"
	"github.com/tOgg1/cheerfeed/internal/timeline"
)

const shutdownTimeout = 10 * time.Second

// Deps are the services the server exposes. Generator is optional; without
// it the proxy endpoint is not mounted.
type Deps struct {
	Timeline  *timeline.Store
	Quota     *quota.Tracker
	Publisher events.Publisher
	Generator llm.Generator
}

// Server is the HTTP API.
type Server struct {
	store    *timeline.Store
	quota    *quota.Tracker
	pub      events.Publisher
	gen      llm.Generator
	cfg      config.ServerConfig
	router   chi.Router
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New creates a server and its routes.
func New(deps Deps, cfg config.ServerConfig) (*Server, error) {
	if deps.Timeline == nil || deps.Quota == nil || deps.Publisher == nil {
		return nil, errors.New("server: timeline, quota and publisher are required")
	}
	s := &Server{
		store: deps.Timeline,
		quota: deps.Quota,
		pub:   deps.Publisher,
		gen:   deps.Generator,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logging.Component("server"),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/timeline", s.handleTimeline)
		r.Post("/timeline/more", s.handleShowMore)
		r.Post("/timeline/collapse", s.handleCollapse)

		r.Get("/items/{id}", s.handleItem)
		r.Post("/items/{id}/replies/{replyID}", s.handleSubReply)
		r.Post("/items/{id}/replies/{replyID}/toggle", s.handleToggleReply)

		r.Post("/posts", s.handleCreatePost)
		r.Post("/posts/{id}/more", s.handleLoadMore)

		r.Post("/quotes/{id}/replies", s.handleDirectReply)
		r.Post("/quotes/{id}/toggle", s.handleToggleDirect)

		r.Get("/status", s.handleStatus)
		r.Put("/user", s.handleRename)

		r.Get("/stream", s.handleStream)
	})

	if s.gen != nil && s.cfg.ProxyPath != "" {
		r.Method(http.MethodPost, s.cfg.ProxyPath, llm.NewProxyHandler(s.gen))
	}

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// requestLogger logs one line per request through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			reqLogger := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			r = r.WithContext(logging.WithContext(r.Context(), reqLogger))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			event := reqLogger.Debug()
			if status >= http.StatusInternalServerError {
				event = reqLogger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
