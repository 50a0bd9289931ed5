package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServer serves GET /healthcheck and GET /metrics.
type HTTPServer struct {
	address string
	checker *Checker
	router  *mux.Router
	logger  logging.Logger
}

func NewHTTPServer(address string, checker *Checker, gatherer prometheus.Gatherer, l logging.Logger) *HTTPServer {
	s := &HTTPServer{
		address: address,
		checker: checker,
		router:  mux.NewRouter(),
		logger:  l.With("module", "http_health"),
	}
	s.router.HandleFunc("/healthcheck", s.healthcheck).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return s
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler { return s.router }

func (s *HTTPServer) healthcheck(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Report()

	w.Header().Set("Content-Type", "application/json")
	if !report.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Error(r.Context(), "write healthcheck response", "error", err)
	}
}

// Run serves until ctx is done, then shuts down.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.address,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP health server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP health server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
