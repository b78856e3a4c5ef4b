package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Concern is a methodological concern a trainee attached to one or more flow nodes.
// NodeIDs and NodeLabels are index-aligned.
type Concern struct {
	ID          string    `json:"id"`
	FlowID      string    `json:"flowId"`
	SessionID   string    `json:"sessionId"`
	Text        string    `json:"text"`
	CommentType string    `json:"commentType,omitempty"`
	NodeIDs     []string  `json:"nodeIds"`
	NodeLabels  []string  `json:"nodeLabels"`
	Timestamp   time.Time `json:"timestamp"`
}

// ThemedConcern is the reduced concern shape sent to and returned from theming.
type ThemedConcern struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	NodeLabels  []string        `json:"nodeLabels,omitempty"`
	CommentType string          `json:"commentType,omitempty"`
	Node        json.RawMessage `json:"node,omitempty"`
	ConcernType string          `json:"concernType,omitempty"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
}

// Themed converts a stored concern into the theming schema.
func (c Concern) Themed() ThemedConcern {
	tc := ThemedConcern{
		ID:          c.ID,
		Text:        c.Text,
		NodeLabels:  c.NodeLabels,
		CommentType: c.CommentType,
	}
	if !c.Timestamp.IsZero() {
		ts := c.Timestamp
		tc.Timestamp = &ts
	}
	return tc
}

// ThemedConcerns converts a list of stored concerns.
func ThemedConcerns(concerns []Concern) []ThemedConcern {
	out := make([]ThemedConcern, len(concerns))
	for i, c := range concerns {
		out[i] = c.Themed()
	}
	return out
}

// AffectedNodesText renders labels as "a, b, c" or "a, b, c and N more".
func AffectedNodesText(labels []string) string {
	if len(labels) <= 3 {
		return strings.Join(labels, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(labels[:3], ", "), len(labels)-3)
}

// ThemeComment is free-text reasoning a trainee attached to a theme by name.
type ThemeComment struct {
	ID        string    `json:"id"`
	FlowID    string    `json:"flowId"`
	SessionID string    `json:"sessionId"`
	ThemeName string    `json:"themeName"`
	Text      string    `json:"commentText"`
	Timestamp time.Time `json:"timestamp"`
}
