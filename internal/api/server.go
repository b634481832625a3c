package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/p-wisp/anti-phishing/internal/config"
	"github.com/p-wisp/anti-phishing/internal/engine"
	"github.com/p-wisp/anti-phishing/internal/metrics"
)

// Server is the HTTP API the browser extension talks to.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
}

func NewServer(cfg *config.Config, eng *engine.Engine, store Store, m *metrics.Metrics, version string) *Server {
	handler := NewHandler(eng, store, m, cfg.Lists.MaxRules, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware(m))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))
	router.Use(BodyLimitMiddleware(cfg.Server.MaxBodyBytes))

	router.Get("/health", handler.Health)
	router.Handle("/metrics", m.Handler())

	router.Route("/v1", func(r chi.Router) {
		r.Post("/score/url", handler.ScoreURL)
		r.Post("/score/html", handler.ScoreHTML)

		r.Get("/lists/block", handler.BlockList)
		r.Get("/lists/entries/{domain}", handler.ListEntries)
	})

	return &Server{
		router:  router,
		handler: handler,
		server: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start blocks until the server stops. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) Handler() *Handler {
	return s.handler
}
