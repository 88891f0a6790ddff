package common

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spirals/formula-dispatch/pkg/common/logger"
)

// HealthServer exposes liveness and readiness endpoints for orchestration
// probes. Liveness always succeeds while the process is up; readiness follows
// the shared ready flag flipped by main once all components are wired.
type HealthServer struct {
	server *http.Server
	ready  *atomic.Bool
}

// NewHealthServer starts an HTTP server on :8080 serving /v1/health and
// /v1/readiness.
func NewHealthServer(ready *atomic.Bool, log *logger.Logger) *HealthServer {
	hs := &HealthServer{ready: ready}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", hs.handleHealth)
	mux.HandleFunc("/v1/readiness", hs.handleReadiness)

	hs.server = &http.Server{
		Addr:         ":8080",
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	go func() { _ = hs.server.ListenAndServe() }()

	return hs
}

// Server returns the underlying HTTP server for shutdown control.
func (hs *HealthServer) Server() *http.Server { return hs.server }

func (hs *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

func (hs *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if !hs.ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
