package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deusflow/sportsdesk/internal/metrics"
)

type statsSource interface {
	Stats(ctx context.Context) map[string]any
}

type monitor struct {
	stats  statsSource
	logger *slog.Logger
	router *mux.Router
	server *http.Server
}

func newMonitor(addr string, stats statsSource, logger *slog.Logger) *monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &monitor{
		stats:  stats,
		logger: logger,
		router: mux.NewRouter(),
	}
	m.routes()
	m.server = &http.Server{
		Addr:         addr,
		Handler:      m.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return m
}

func (m *monitor) routes() {
	m.router.HandleFunc("/health", m.healthHandler).Methods(http.MethodGet)
	m.router.HandleFunc("/stats", m.statsHandler).Methods(http.MethodGet)
	m.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (m *monitor) Start() error {
	m.logger.Info("starting monitoring server", "addr", m.server.Addr)
	if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *monitor) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

func (m *monitor) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	code := http.StatusOK
	if !metrics.Global.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (m *monitor) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.stats.Stats(r.Context()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
