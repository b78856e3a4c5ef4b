package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyGraph is returned when a flowchart payload is blank.
var ErrEmptyGraph = errors.New("flowchart payload is empty")

// Position is a node's place on the diagram canvas.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a diagram node. Only the id, position and label are interpreted;
// every other field of the payload survives a decode/encode round trip.
type Node struct {
	ID       string
	Position Position
	Data     json.RawMessage

	fields map[string]json.RawMessage
}

type nodeData struct {
	Label    json.RawMessage `json:"label"`
	Elements struct {
		Label struct {
			Text string `json:"text"`
		} `json:"label"`
	} `json:"elements"`
}

// Label returns data.elements.label.text, falling back to data.label.
func (n Node) Label() string {
	if len(n.Data) == 0 {
		return ""
	}
	var d nodeData
	if err := json.Unmarshal(n.Data, &d); err != nil {
		return ""
	}
	if d.Elements.Label.Text != "" {
		return d.Elements.Label.Text
	}
	var label string
	if len(d.Label) > 0 && json.Unmarshal(d.Label, &label) == nil {
		return label
	}
	return ""
}

func (n *Node) UnmarshalJSON(b []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	n.fields = fields
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &n.ID); err != nil {
			return fmt.Errorf("node id: %w", err)
		}
	}
	if raw, ok := fields["position"]; ok {
		if err := json.Unmarshal(raw, &n.Position); err != nil {
			return fmt.Errorf("node %s position: %w", n.ID, err)
		}
	}
	n.Data = fields["data"]
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(n.fields)+3)
	for k, v := range n.fields {
		out[k] = v
	}
	id, err := json.Marshal(n.ID)
	if err != nil {
		return nil, err
	}
	out["id"] = id
	pos, err := json.Marshal(n.Position)
	if err != nil {
		return nil, err
	}
	out["position"] = pos
	if len(n.Data) > 0 {
		out["data"] = n.Data
	}
	return json.Marshal(out)
}

// Edge connects two nodes. Like Node, unknown fields are preserved.
type Edge struct {
	ID     string
	Source string
	Target string

	fields map[string]json.RawMessage
}

// NewEdge builds an edge carrying extra rendering attributes (handles, style, markers).
func NewEdge(id, source, target string, attrs map[string]any) (Edge, error) {
	e := Edge{ID: id, Source: source, Target: target, fields: map[string]json.RawMessage{}}
	for k, v := range attrs {
		raw, err := json.Marshal(v)
		if err != nil {
			return Edge{}, fmt.Errorf("edge %s attribute %s: %w", id, k, err)
		}
		e.fields[k] = raw
	}
	return e, nil
}

func (e *Edge) UnmarshalJSON(b []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	e.fields = fields
	for key, dst := range map[string]*string{"id": &e.ID, "source": &e.Source, "target": &e.Target} {
		if raw, ok := fields[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil {
				return fmt.Errorf("edge %s: %w", key, err)
			}
		}
	}
	return nil
}

func (e Edge) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.fields)+3)
	for k, v := range e.fields {
		out[k] = v
	}
	for key, val := range map[string]string{"id": e.ID, "source": e.Source, "target": e.Target} {
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		out[key] = raw
	}
	return json.Marshal(out)
}

// Graph is the diagram payload stored in Flow.Flowchart.
type Graph struct {
	Nodes []Node
	Edges []Edge

	fields map[string]json.RawMessage
}

// ParseGraph decodes a serialized flowchart.
func ParseGraph(payload string) (*Graph, error) {
	if payload == "" {
		return nil, ErrEmptyGraph
	}
	var g Graph
	if err := json.Unmarshal([]byte(payload), &g); err != nil {
		return nil, fmt.Errorf("parse flowchart: %w", err)
	}
	return &g, nil
}

func (g *Graph) UnmarshalJSON(b []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	g.fields = fields
	if raw, ok := fields["nodes"]; ok {
		if err := json.Unmarshal(raw, &g.Nodes); err != nil {
			return fmt.Errorf("nodes: %w", err)
		}
	}
	if raw, ok := fields["edges"]; ok {
		if err := json.Unmarshal(raw, &g.Edges); err != nil {
			return fmt.Errorf("edges: %w", err)
		}
	}
	return nil
}

func (g Graph) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(g.fields)+2)
	for k, v := range g.fields {
		out[k] = v
	}
	nodes := g.Nodes
	if nodes == nil {
		nodes = []Node{}
	}
	edges := g.Edges
	if edges == nil {
		edges = []Edge{}
	}
	rawNodes, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	rawEdges, err := json.Marshal(edges)
	if err != nil {
		return nil, err
	}
	out["nodes"] = rawNodes
	out["edges"] = rawEdges
	return json.Marshal(out)
}

// Encode serializes the graph back into the flowchart string form.
func (g *Graph) Encode() (string, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Labels resolves labels index-aligned with ids. Unknown ids map to "".
func (g *Graph) Labels(ids []string) []string {
	labels := make([]string, len(ids))
	for i, id := range ids {
		if n, ok := g.Node(id); ok {
			labels[i] = n.Label()
		}
	}
	return labels
}

// MoveNodes applies position updates and reports how many nodes moved.
func (g *Graph) MoveNodes(updates map[string]Position) int {
	moved := 0
	for i := range g.Nodes {
		if pos, ok := updates[g.Nodes[i].ID]; ok {
			g.Nodes[i].Position = pos
			moved++
		}
	}
	return moved
}

// UpsertEdges replaces edges with matching ids and appends the rest.
func (g *Graph) UpsertEdges(edges []Edge) (updated, added int) {
	index := make(map[string]int, len(g.Edges))
	for i, e := range g.Edges {
		index[e.ID] = i
	}
	for _, e := range edges {
		if i, ok := index[e.ID]; ok {
			g.Edges[i] = e
			updated++
			continue
		}
		index[e.ID] = len(g.Edges)
		g.Edges = append(g.Edges, e)
		added++
	}
	return updated, added
}

// RemoveEdges drops edges by id and reports how many were removed.
func (g *Graph) RemoveEdges(ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if _, ok := drop[e.ID]; ok {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(g.Edges) - len(kept)
	g.Edges = kept
	return removed
}
