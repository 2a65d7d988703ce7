package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"artsync/pkg/logger"
)

// Server serves /metrics and /healthz
type Server struct {
	httpServer *http.Server
	log        logger.Logger
}

// NewServer builds the endpoint for m on addr
func NewServer(addr string, m *Metrics, log logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           Router(m),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger.Or(log),
	}
}

// Router returns the handler tree
func Router(m *Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	})
	return r
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		s.log.InfoWithFields("metrics endpoint listening", map[string]interface{}{"addr": s.httpServer.Addr})
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("metrics endpoint stopped")
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
