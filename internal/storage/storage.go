package storage

import (
	"context"
	"time"

	"github.com/xaenox/concern-cloud/internal/models"
)

// Storage persists flows, concerns and theme comments.
type Storage interface {
	FlowStorage
	ConcernStorage
	ThemeCommentStorage
	Close() error
}

// FlowStorage has no delete: flows are read-mostly diagram documents.
type FlowStorage interface {
	CreateFlow(ctx context.Context, flow *models.Flow) error
	// ListFlows returns flows in creation order.
	ListFlows(ctx context.Context) ([]models.Flow, error)
	GetFlow(ctx context.Context, id string) (*models.Flow, error)
	// UpdateFlowchart replaces the graph payload. The version is left alone.
	UpdateFlowchart(ctx context.Context, id, flowchart string) (*models.Flow, error)
}

// ConcernStorage never mutates a concern after creation.
type ConcernStorage interface {
	CreateConcern(ctx context.Context, concern *models.Concern) error
	// ListConcerns returns the (flow, session) set, newest first.
	ListConcerns(ctx context.Context, flowID, sessionID string) ([]models.Concern, error)
	DeleteConcern(ctx context.Context, id string) error
}

type ThemeCommentStorage interface {
	CreateThemeComment(ctx context.Context, comment *models.ThemeComment) error
	// ListThemeComments returns the (flow, session, theme) thread, newest first.
	ListThemeComments(ctx context.Context, flowID, sessionID, themeName string) ([]models.ThemeComment, error)
}

// now is truncated to milliseconds so every backend round-trips it exactly.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
