package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

type createThemeCommentRequest struct {
	FlowID      string `json:"flowId" validate:"required"`
	SessionID   string `json:"sessionId" validate:"required"`
	ThemeName   string `json:"themeName" validate:"required"`
	CommentText string `json:"commentText" validate:"required,max=5000"`
}

func (s *Server) listThemeComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	flowID, sessionID, themeName := q.Get("flowId"), q.Get("sessionId"), q.Get("themeName")
	if flowID == "" || sessionID == "" || themeName == "" {
		s.writeError(w, r, apperr.Invalid("flowId, sessionId and themeName are required"))
		return
	}

	comments, err := s.store.ListThemeComments(r.Context(), flowID, sessionID, themeName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: comments})
}

func (s *Server) createThemeComment(w http.ResponseWriter, r *http.Request) {
	var req createThemeCommentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.CommentText) == "" {
		s.writeError(w, r, apperr.Invalid("commentText must not be blank"))
		return
	}

	comment := &models.ThemeComment{
		FlowID:    req.FlowID,
		SessionID: req.SessionID,
		ThemeName: req.ThemeName,
		Text:      req.CommentText,
	}
	if err := s.store.CreateThemeComment(r.Context(), comment); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("Theme comment created",
		zap.String("flow_id", comment.FlowID),
		zap.String("session_id", comment.SessionID),
		zap.String("theme", comment.ThemeName))
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: comment})
}
