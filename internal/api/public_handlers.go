package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rob634/rmhtitiler-sub001/internal/api/presenter"
	"github.com/rob634/rmhtitiler-sub001/internal/buildinfo"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

// handleHealth responds with a simple OK status to indicate the server is healthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type ReadyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// handleReady reports whether the process can actually serve requests:
// the storage credential must be cached and unexpired, and a configured
// database pool must answer a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	storageOK := false
	for _, status := range s.cache.Status() {
		if status.Scope != core.ScopeStorage {
			continue
		}
		if status.Present && time.Now().Before(status.ExpiresAt) {
			storageOK = true
		}
	}
	if storageOK {
		checks["storage_credential"] = "ok"
	} else {
		checks["storage_credential"] = "missing or expired"
		ready = false
	}

	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	presenter.JSON(w, r, ReadyResponse{Ready: ready, Checks: checks}, code)
}

type AboutResponse struct {
	buildinfo.Info
	Identity ChainInfo `json:"identity"`
}

// handleAbout responds with service information including version, commit
// hash and the identity chain the process runs with.
func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, AboutResponse{
		Info:     buildinfo.GetBuildInfo(),
		Identity: s.chain,
	}, http.StatusOK)
}
