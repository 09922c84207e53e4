package api

import (
	"net/http"

	"github.com/rob634/rmhtitiler-sub001/internal/api/presenter"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

type CredentialStatusResponse struct {
	Identity ChainInfo          `json:"identity"`
	Scopes   []core.ScopeStatus `json:"scopes"`
}

// handleCredentialStatus responds with the redacted state of every
// cached credential. Token values never appear here, only fingerprints.
func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, CredentialStatusResponse{
		Identity: s.chain,
		Scopes:   s.cache.Status(),
	}, http.StatusOK)
}
