// Package gateway serves the HTTP side of a table server: metrics, health and a
// read-only JSON view of lock rows.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/rowlock/pkg/metrics"
	"github.com/pixperk/rowlock/pkg/table"
	lktime "github.com/pixperk/rowlock/pkg/time"
	"github.com/pixperk/rowlock/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports whether the node can serve writes.
type HealthFunc func(ctx context.Context) error

type Server struct {
	httpServer *http.Server
	store      table.Store
	health     HealthFunc
	clock      lktime.Clock
	logger     hclog.Logger
}

func NewServer(httpAddr string, store table.Store, health HealthFunc, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{
		store:  store,
		health: health,
		clock:  lktime.SystemClock{},
		logger: logger.Named("gateway"),
	}
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/tables/{table}", s.handleTable)
	mux.HandleFunc("GET /v1/tables/{table}/rows/{key}", s.handleRow)
	return instrument(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// counts requests per matched route
func instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		mux.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestTotal.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("http gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP gateway: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.GetTable(r.Context(), r.PathValue("table"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type rowView struct {
	types.Row
	Version string `json:"version"`
	State   string `json:"state"`
}

// lease state is judged with the timeout passed as ?timeout=, default 60s
func (s *Server) handleRow(w http.ResponseWriter, r *http.Request) {
	timeout := 60 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid timeout"})
			return
		}
		timeout = d
	}

	info, err := s.store.GetTable(r.Context(), r.PathValue("table"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	row, version, err := s.store.GetRow(r.Context(), info.ID, r.PathValue("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "lock not found"})
		return
	}

	state := types.StateOf(row.Score, lktime.Micros(s.clock), timeout.Microseconds())
	writeJSON(w, http.StatusOK, rowView{Row: *row, Version: version, State: state.String()})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrTableNotFound):
		code = http.StatusNotFound
	case errors.Is(err, types.ErrInvalidKey), errors.Is(err, types.ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, types.ErrNotLeader):
		code = http.StatusServiceUnavailable
	default:
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
