package models

import (
	"sort"
	"time"
)

// Flow is a stored flowchart describing a study's methodological steps.
type Flow struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Flowchart          string    `json:"flowchart"`
	SubmissionInstance int       `json:"submissionInstance"`
	Version            int       `json:"version"`
	CreatedDate        time.Time `json:"createdDate"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// FlowSummary is the flow picker view of a Flow.
type FlowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	NodeCount   int       `json:"nodeCount"`
	EdgeCount   int       `json:"edgeCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// Graph parses the flowchart payload.
func (f *Flow) Graph() (*Graph, error) {
	return ParseGraph(f.Flowchart)
}

// Timestamp is the creation date used for recency ordering.
func (f *Flow) Timestamp() time.Time {
	if !f.CreatedDate.IsZero() {
		return f.CreatedDate
	}
	return f.CreatedAt
}

// Summary counts nodes and edges. An unparseable payload yields zero counts.
func (f *Flow) Summary() FlowSummary {
	s := FlowSummary{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Timestamp:   f.Timestamp(),
	}
	if g, err := f.Graph(); err == nil {
		s.NodeCount = len(g.Nodes)
		s.EdgeCount = len(g.Edges)
	}
	return s
}

// MostRecent returns the most recently created flow.
func MostRecent(flows []Flow) (Flow, bool) {
	if len(flows) == 0 {
		return Flow{}, false
	}
	sorted := make([]Flow, len(flows))
	copy(sorted, flows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp().After(sorted[j].Timestamp())
	})
	return sorted[0], true
}

// FindFlow looks a flow up by id.
func FindFlow(flows []Flow, id string) (Flow, bool) {
	for _, f := range flows {
		if f.ID == id {
			return f, true
		}
	}
	return Flow{}, false
}
