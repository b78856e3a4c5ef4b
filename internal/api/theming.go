package api

import (
	"net/http"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
	"github.com/xaenox/concern-cloud/internal/theming"
)

type processConcernsRequest struct {
	Concerns  []models.ThemedConcern `json:"concerns"`
	SessionID string                 `json:"sessionId"`
}

func (s *Server) processConcerns(w http.ResponseWriter, r *http.Request) {
	var req processConcernsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Malformed requests are rejected without spending a rate-limit token.
	if err := theming.Validate(req.Concerns); err != nil {
		s.writeError(w, r, err)
		return
	}

	key := req.SessionID
	if key == "" {
		key = "addr:" + r.RemoteAddr
	}
	if !s.limiter.Allow(key) {
		s.writeError(w, r, apperr.New(apperr.RateLimited, "too many theming requests, try again shortly"))
		return
	}

	set, err := s.theming.Process(r.Context(), req.Concerns, req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}
