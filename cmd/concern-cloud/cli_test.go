package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/concern-cloud/internal/api"
	"github.com/xaenox/concern-cloud/internal/models"
	"github.com/xaenox/concern-cloud/internal/storage"
	"github.com/xaenox/concern-cloud/internal/theming"
)

func TestParsePositions(t *testing.T) {
	got, err := parsePositions([]byte("a: {x: 400, y: 20}\nb:\n  x: 350\n  y: 175\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Position{"a": {X: 400, Y: 20}, "b": {X: 350, Y: 175}}, got)

	_, err = parsePositions([]byte(""))
	assert.Error(t, err)
}

func TestParseEdges(t *testing.T) {
	src := `
edges:
  - id: e1
    source: a
    target: b
    sourceHandle: output-bottom
    style: {stroke: "#333", strokeWidth: 2}
remove: [e7]
`
	edges, remove, err := parseEdges([]byte(src))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, []string{"e7"}, remove)

	g := &models.Graph{}
	_, added := g.UpsertEdges(edges)
	assert.Equal(t, 1, added)
	payload, err := g.Encode()
	require.NoError(t, err)
	assert.Contains(t, payload, `"sourceHandle":"output-bottom"`)
	assert.Contains(t, payload, `"strokeWidth":2`)

	_, _, err = parseEdges([]byte("edges:\n  - id: e1\n    source: a\n"))
	assert.Error(t, err)
}

func TestPrintFlowList(t *testing.T) {
	var buf bytes.Buffer
	flows := []models.Flow{{
		ID:          "f1",
		Name:        "Neuroserpin",
		Flowchart:   `{"nodes":[{"id":"n1","data":{"label":"Rat embryos"}}],"edges":[]}`,
		CreatedDate: time.Date(2025, 5, 22, 14, 3, 0, 0, time.UTC),
	}}
	require.NoError(t, printFlowList(&buf, flows))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"f1", "Neuroserpin", "1", "0", "2025-05-22", "14:03"}, strings.Fields(lines[1]))
}

func TestPrintThemes(t *testing.T) {
	var buf bytes.Buffer
	set := &models.ThemeSet{Themes: []models.Theme{{
		Name: "Blinding",
		Concerns: []models.ThemedConcern{
			{ID: "c1", Text: "a", NodeLabels: []string{"Assessment", "Scoring", "Follow-up", "Analysis"}},
		},
	}}}
	require.NoError(t, printThemes(&buf, set))
	assert.Contains(t, buf.String(), "Assessment, Scoring, Follow-up and 1 more")
}

func TestCloudCommandEndToEnd(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	flow := &models.Flow{
		Name:      "Trial",
		Flowchart: `{"nodes":[{"id":"n1","position":{"x":0,"y":0},"data":{"label":"Recruitment"}}],"edges":[]}`,
	}
	require.NoError(t, store.CreateFlow(ctx, flow))
	for _, text := range []string{"Sample drawn from one clinic", "Assessors were not blinded", "Randomization was predictable"} {
		require.NoError(t, store.CreateConcern(ctx, &models.Concern{
			FlowID: flow.ID, SessionID: "s1", Text: text,
			NodeIDs: []string{"n1"}, NodeLabels: []string{"Recruitment"},
		}))
	}

	srv := api.New(api.Options{
		Store:            store,
		Theming:          theming.NewService(theming.NewKeywordThemer(), nil, logger),
		Logger:           logger,
		ThemingPerMinute: 60,
		ThemingBurst:     10,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	out := filepath.Join(t.TempDir(), "cloud.svg")
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"--config", "", "--log-level", "error", "cloud",
		"--api", ts.URL, "--session", "s1", "--out", out, "--show-concerns"})
	require.NoError(t, rootCmd.ExecuteContext(ctx))

	assert.Contains(t, stdout.String(), "Flow: Trial")
	assert.Contains(t, stdout.String(), "Assessors were not blinded")
	assert.Contains(t, stderr.String(), "Processing with AI...")

	svg, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<circle")
}
