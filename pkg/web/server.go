// Package web serves the browser chat client: a static page, a websocket
// endpoint streaming progress events, and health and metrics endpoints.
package web

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ensemble-ai/ensemble/pkg/graph"
	"github.com/ensemble-ai/ensemble/pkg/logger"
)

//go:embed static/index.html
var indexHTML []byte

// Server hosts one chatbot over HTTP. Each websocket connection is an
// independent session with its own history.
type Server struct {
	executor *graph.Executor
	metrics  *Metrics
	registry *prometheus.Registry
	httpSrv  *http.Server
}

func NewServer(executor *graph.Executor) *Server {
	registry := prometheus.NewRegistry()
	return &Server{
		executor: executor,
		metrics:  NewMetrics(registry),
		registry: registry,
	}
}

// Router builds the HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	logger.GetLogger().Info("web server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.GetLogger().Warn("web server shutdown error", "error", err)
		}
		return nil
	}
}
