package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

type createConcernRequest struct {
	FlowID      string   `json:"flowId" validate:"required"`
	SessionID   string   `json:"sessionId" validate:"required"`
	Text        string   `json:"text" validate:"required,max=5000"`
	CommentType string   `json:"commentType"`
	NodeIDs     []string `json:"nodeIds"`
	NodeLabels  []string `json:"nodeLabels"`
}

func (s *Server) createConcern(w http.ResponseWriter, r *http.Request) {
	var req createConcernRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, apperr.Invalid("text must not be blank"))
		return
	}

	flow, err := s.store.GetFlow(r.Context(), req.FlowID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	labels, err := resolveLabels(flow, req.NodeIDs, req.NodeLabels)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	concern := &models.Concern{
		FlowID:     req.FlowID,
		SessionID:  req.SessionID,
		Text:       req.Text,
		NodeIDs:    req.NodeIDs,
		NodeLabels: labels,
	}
	if strings.TrimSpace(req.CommentType) != "" {
		concern.CommentType = req.CommentType
	}
	if concern.NodeIDs == nil {
		concern.NodeIDs = []string{}
	}

	if err := s.store.CreateConcern(r.Context(), concern); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.ConcernsCreated.Inc()

	s.logger.Info("Concern created",
		zap.String("concern_id", concern.ID),
		zap.String("flow_id", concern.FlowID),
		zap.String("session_id", concern.SessionID),
		zap.Int("nodes", len(concern.NodeIDs)))
	writeJSON(w, http.StatusCreated, concern)
}

// resolveLabels keeps nodeIds and nodeLabels index-aligned, filling blank or
// absent labels from the flow graph.
func resolveLabels(flow *models.Flow, ids, labels []string) ([]string, error) {
	if len(labels) > 0 && len(labels) != len(ids) {
		return nil, apperr.Invalid("nodeIds and nodeLabels must have the same length").
			WithDetail("nodeIds", len(ids)).
			WithDetail("nodeLabels", len(labels))
	}
	out := make([]string, len(ids))
	copy(out, labels)

	needGraph := false
	for _, l := range out {
		if l == "" {
			needGraph = true
			break
		}
	}
	if !needGraph {
		return out, nil
	}

	g, err := flow.Graph()
	if err != nil {
		return out, nil
	}
	resolved := g.Labels(ids)
	for i := range out {
		if out[i] == "" {
			out[i] = resolved[i]
		}
	}
	return out, nil
}

func (s *Server) listConcerns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	flowID, sessionID := q.Get("flowId"), q.Get("sessionId")
	if flowID == "" || sessionID == "" {
		s.writeError(w, r, apperr.Invalid("Both Flow ID and Session ID are required"))
		return
	}

	concerns, err := s.store.ListConcerns(r.Context(), flowID, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, concerns)
}

func (s *Server) deleteConcern(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("commentId")
	if id == "" {
		s.writeError(w, r, apperr.Invalid("Comment ID is required"))
		return
	}

	if err := s.store.DeleteConcern(r.Context(), id); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			err = apperr.NotFoundf("Comment not found")
		}
		s.writeError(w, r, err)
		return
	}
	s.metrics.ConcernsDeleted.Inc()

	s.logger.Info("Concern deleted", zap.String("concern_id", id))
	writeJSON(w, http.StatusOK, message{Message: "Comment deleted successfully"})
}
