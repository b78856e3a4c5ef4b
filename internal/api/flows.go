package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

type createFlowRequest struct {
	Flowchart          string    `json:"flowchart" validate:"required"`
	Name               string    `json:"name" validate:"required,max=200"`
	Description        string    `json:"description" validate:"max=2000"`
	SubmissionInstance int       `json:"submissionInstance" validate:"gte=0"`
	Version            int       `json:"version" validate:"gte=0"`
	CreatedDate        time.Time `json:"createdDate"`
}

type updateFlowchartRequest struct {
	ID        string `json:"id" validate:"required"`
	Flowchart string `json:"flowchart" validate:"required"`
}

func checkGraph(payload string) error {
	if _, err := models.ParseGraph(payload); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "flowchart is not a valid graph payload", err)
	}
	return nil
}

func (s *Server) createFlow(w http.ResponseWriter, r *http.Request) {
	var req createFlowRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := checkGraph(req.Flowchart); err != nil {
		s.writeError(w, r, err)
		return
	}

	flow := &models.Flow{
		Name:               strings.TrimSpace(req.Name),
		Description:        req.Description,
		Flowchart:          req.Flowchart,
		SubmissionInstance: req.SubmissionInstance,
		Version:            req.Version,
		CreatedDate:        req.CreatedDate,
	}
	if err := s.store.CreateFlow(r.Context(), flow); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("Flow created", zap.String("flow_id", flow.ID), zap.String("name", flow.Name))
	writeJSON(w, http.StatusCreated, flow)
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.store.ListFlows(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("view") == "summary" {
		summaries := make([]models.FlowSummary, len(flows))
		for i := range flows {
			summaries[i] = flows[i].Summary()
		}
		writeJSON(w, http.StatusOK, summaries)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.store.GetFlow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) updateFlowchart(w http.ResponseWriter, r *http.Request) {
	var req updateFlowchartRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := checkGraph(req.Flowchart); err != nil {
		s.writeError(w, r, err)
		return
	}

	flow, err := s.store.UpdateFlowchart(r.Context(), req.ID, req.Flowchart)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("Flowchart updated", zap.String("flow_id", flow.ID))
	writeJSON(w, http.StatusOK, flow)
}
