package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qmakemodel/internal/core/buildsystem"
)

// schedulerStatus is what the health endpoint reports on.
type schedulerStatus interface {
	State() buildsystem.State
	PendingEvaluations() int
}

type healthStatus struct {
	Status     string `json:"status"`
	State      string `json:"state"`
	Pending    int    `json:"pending"`
	Generation uint64 `json:"generation"`
}

type ObservabilityServer struct {
	addr      string
	scheduler schedulerStatus
	last      func() *buildsystem.Update
	server    *http.Server
}

func NewObservabilityServer(addr string, scheduler schedulerStatus, last func() *buildsystem.Update) *ObservabilityServer {
	return &ObservabilityServer{
		addr:      addr,
		scheduler: scheduler,
		last:      last,
	}
}

func (s *ObservabilityServer) check() healthStatus {
	st := s.scheduler.State()
	status := healthStatus{
		Status:  "up",
		State:   st.String(),
		Pending: s.scheduler.PendingEvaluations(),
	}
	if st == buildsystem.ShuttingDown {
		status.Status = "down"
	}
	if s.last != nil {
		if u := s.last(); u != nil {
			status.Generation = u.Generation
		}
	}
	return status
}

func (s *ObservabilityServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := s.check()
		w.Header().Set("Content-Type", "application/json")
		if status.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

func (s *ObservabilityServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.handler(),
	}

	slog.Info("observability server starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server failed", "error", err)
		}
	}()

	return nil
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
