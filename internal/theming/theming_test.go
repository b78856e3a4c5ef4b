package theming

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/metrics"
	"github.com/xaenox/concern-cloud/internal/models"
)

var sampleTexts = []string{
	"Participants were recruited from a single clinic, so the sample may not generalize.",
	"Allocation to groups was not random and the assignment could be predicted.",
	"Assessors were not blinded to the treatment arm.",
	"The questionnaire used to measure anxiety has not been validated.",
	"Dropout was high in the control arm and missing data were ignored.",
	"Baseline differences in age were not controlled for.",
	"Follow-up duration of two weeks is too short to observe the outcome.",
	"Consent forms did not explain the data sharing plan.",
	"Recruitment relied on volunteers who may be more motivated.",
	"The measurement instrument changed halfway through the study.",
}

func makeConcerns(n int) []models.ThemedConcern {
	out := make([]models.ThemedConcern, n)
	for i := range out {
		out[i] = models.ThemedConcern{
			ID:          fmt.Sprintf("c%02d", i),
			Text:        fmt.Sprintf("%s (#%d)", sampleTexts[i%len(sampleTexts)], i),
			NodeLabels:  []string{fmt.Sprintf("Step %d", i%4)},
			CommentType: []string{"BIAS", "CONFOUND", ""}[i%3],
		}
	}
	return out
}

func assertCoverage(t *testing.T, input []models.ThemedConcern, set *models.ThemeSet) {
	t.Helper()
	want := map[string]string{}
	for _, c := range input {
		want[c.ID] = c.Text
	}
	seen := map[string]int{}
	for _, theme := range set.Themes {
		assert.NotEmpty(t, strings.TrimSpace(theme.Name))
		for _, c := range theme.Concerns {
			seen[c.ID]++
			text, ok := want[c.ID]
			if assert.True(t, ok, "unexpected concern %s", c.ID) {
				assert.Equal(t, text, c.Text, "text of %s was rewritten", c.ID)
			}
		}
	}
	for id := range want {
		assert.Equal(t, 1, seen[id], "concern %s should appear exactly once", id)
	}
}

func TestTargetBand(t *testing.T) {
	tests := []struct {
		n, lo, hi int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{2, 1, 2},
		{3, 3, 5},
		{5, 3, 5},
		{9, 3, 5},
		{10, 5, 8},
		{15, 5, 8},
		{20, 5, 8},
		{21, 8, 15},
		{25, 8, 15},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			lo, hi := TargetBand(tt.n)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
	assert.True(t, InBand(5, 3))
	assert.False(t, InBand(15, 9))
}

func TestBuildPrompt(t *testing.T) {
	concerns := makeConcerns(12)
	concerns[0].Node = json.RawMessage(`{"id":"n1"}`)

	prompt, err := BuildPrompt(concerns)
	require.NoError(t, err)

	assert.Contains(t, prompt, `"id": "c00"`)
	assert.Contains(t, prompt, `"commentType": "BIAS"`)
	assert.Contains(t, prompt, "between 5 and 8 themes")
	assert.Contains(t, prompt, "exactly one theme")
	assert.Contains(t, prompt, `{"themes": [`)
	assert.NotContains(t, prompt, "flowId")
	assert.NotContains(t, prompt, "sessionId")
}

func TestParseResponseRehydrates(t *testing.T) {
	input := makeConcerns(4)
	raw := "```json\n" + `{"themes":[
		{"name":" SAMPLE SELECTION ","concerns":[{"id":"c00","text":"rewritten by the model"},{"id":"c01"}]},
		{"name":"BLINDING","concerns":[{"id":"c02","text":"x"},{"id":"c00","text":"duplicate"},{"id":"ghost","text":"invented"}]},
		{"name":"EMPTY","concerns":[]},
		{"name":"SAMPLE SELECTION","concerns":[{"text":` + mustJSON(input[3].Text) + `}]}
	]}` + "\n```"

	set, err := ParseResponse(raw, input)
	require.NoError(t, err)

	require.Len(t, set.Themes, 2)
	assert.Equal(t, "SAMPLE SELECTION", set.Themes[0].Name)
	assert.Equal(t, "BLINDING", set.Themes[1].Name)
	assert.Len(t, set.Themes[0].Concerns, 3)
	assertCoverage(t, input, set)
}

func TestParseResponseNumericIDs(t *testing.T) {
	input := []models.ThemedConcern{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}}
	set, err := ParseResponse(`{"themes":[{"name":"ONE","concerns":[{"id":1},{"id":2}]}]}`, input)
	require.NoError(t, err)
	assertCoverage(t, input, set)
}

func TestParseResponseFailures(t *testing.T) {
	input := makeConcerns(3)
	tests := map[string]string{
		"not json":        "Sure! Here are your themes.",
		"themes missing":  `{"groups":[]}`,
		"themes empty":    `{"themes":[]}`,
		"blank name":      `{"themes":[{"name":"","concerns":[{"id":"c00"},{"id":"c01"},{"id":"c02"}]}]}`,
		"concern lost":    `{"themes":[{"name":"A","concerns":[{"id":"c00"},{"id":"c01"}]}]}`,
		"only inventions": `{"themes":[{"name":"A","concerns":[{"id":"zz","text":"new"}]}]}`,
		"trailing data":   `{"themes":[{"name":"A","concerns":[{"id":"c00"},{"id":"c01"},{"id":"c02"}]}]} {}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResponse(raw, input)
			require.Error(t, err)
			assert.Equal(t, apperr.ProcessingFailed, apperr.KindOf(err))
		})
	}
}

type completionFunc func(req openai.ChatCompletionRequest) (int, string)

func newCompletionServer(t *testing.T, fn completionFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, body := fn(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, body)
			return
		}
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: body},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestThemer(t *testing.T, url string, failures uint32) *OpenAIThemer {
	return NewOpenAIThemer(OpenAIOptions{
		APIKey:          "sk-test",
		BaseURL:         url + "/v1",
		Model:           "gpt-4o-mini",
		MaxTokens:       4000,
		Temperature:     0.4,
		Timeout:         5 * time.Second,
		BreakerFailures: failures,
		BreakerTimeout:  time.Minute,
	}, zaptest.NewLogger(t))
}

// shuffledGrouping mimics a model: a random grouping inside the band with
// rewritten text on some items.
func shuffledGrouping(input []models.ThemedConcern, rng *rand.Rand) string {
	lo, hi := TargetBand(len(input))
	k := lo + rng.Intn(hi-lo+1)
	if k > len(input) {
		k = len(input)
	}
	order := rng.Perm(len(input))
	type item struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	type theme struct {
		Name     string `json:"name"`
		Concerns []item `json:"concerns"`
	}
	themes := make([]theme, k)
	for i := range themes {
		themes[i].Name = fmt.Sprintf("THEME %c", 'A'+i)
	}
	for pos, idx := range order {
		c := input[idx]
		text := c.Text
		if rng.Intn(2) == 0 {
			text = strings.ToUpper(text)
		}
		themes[pos%k].Concerns = append(themes[pos%k].Concerns, item{ID: c.ID, Text: text})
	}
	b, _ := json.Marshal(map[string]any{"themes": themes})
	return string(b)
}

func TestOpenAIThemerRequestShape(t *testing.T) {
	input := makeConcerns(5)
	var seen openai.ChatCompletionRequest
	srv, _ := newCompletionServer(t, func(req openai.ChatCompletionRequest) (int, string) {
		seen = req
		return http.StatusOK, shuffledGrouping(input, rand.New(rand.NewSource(1)))
	})

	set, err := newTestThemer(t, srv.URL, 5).Theme(context.Background(), input, "session-1")
	require.NoError(t, err)
	assertCoverage(t, input, set)

	assert.Equal(t, "gpt-4o-mini", seen.Model)
	assert.InDelta(t, 0.4, seen.Temperature, 1e-6)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, seen.ResponseFormat.Type)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Contains(t, seen.Messages[1].Content, "c04")
	assert.Equal(t, "session-1", seen.User)
}

func TestOpenAIThemerPropertiesAcrossRuns(t *testing.T) {
	for _, n := range []int{3, 5, 10, 15, 21, 25} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			input := makeConcerns(n)
			var run int64
			srv, _ := newCompletionServer(t, func(req openai.ChatCompletionRequest) (int, string) {
				seed := atomic.AddInt64(&run, 1)
				return http.StatusOK, shuffledGrouping(input, rand.New(rand.NewSource(seed)))
			})
			svc := NewService(newTestThemer(t, srv.URL, 5), metrics.NewCollector("test"), zaptest.NewLogger(t))

			for i := 0; i < 2; i++ {
				set, err := svc.Process(context.Background(), input, "s")
				require.NoError(t, err)
				assertCoverage(t, input, set)
				assert.True(t, InBand(n, len(set.Themes)), "%d themes for %d concerns", len(set.Themes), n)
			}
		})
	}
}

func TestOpenAIThemerUpstreamFailure(t *testing.T) {
	srv, calls := newCompletionServer(t, func(req openai.ChatCompletionRequest) (int, string) {
		return http.StatusInternalServerError, `{"error":{"message":"overloaded","type":"server_error"}}`
	})
	themer := newTestThemer(t, srv.URL, 1)

	_, err := themer.Theme(context.Background(), makeConcerns(3), "s")
	require.Error(t, err)
	assert.Equal(t, apperr.UpstreamError, apperr.KindOf(err))
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Details["status"])

	// One failure trips the breaker; the next call never reaches the server.
	_, err = themer.Theme(context.Background(), makeConcerns(3), "s")
	require.Error(t, err)
	assert.Equal(t, apperr.UpstreamError, apperr.KindOf(err))
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "open", appErr.Details["breaker"])
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestOpenAIThemerMalformedReply(t *testing.T) {
	srv, _ := newCompletionServer(t, func(req openai.ChatCompletionRequest) (int, string) {
		return http.StatusOK, `{"result":"I could not decide"}`
	})
	_, err := newTestThemer(t, srv.URL, 5).Theme(context.Background(), makeConcerns(3), "s")
	assert.Equal(t, apperr.ProcessingFailed, apperr.KindOf(err))
}

type countingThemer struct {
	calls int
}

func (c *countingThemer) Theme(ctx context.Context, concerns []models.ThemedConcern, sessionID string) (*models.ThemeSet, error) {
	c.calls++
	return &models.ThemeSet{Themes: []models.Theme{{Name: "ALL", Concerns: concerns}}}, nil
}

func TestServiceRejectsBeforeOutboundCall(t *testing.T) {
	themer := &countingThemer{}
	svc := NewService(themer, nil, zaptest.NewLogger(t))

	for name, input := range map[string][]models.ThemedConcern{
		"nil":          nil,
		"empty":        {},
		"missing id":   {{Text: "a"}},
		"missing text": {{ID: "1", Text: "  "}},
		"duplicate id": {{ID: "1", Text: "a"}, {ID: "1", Text: "b"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Process(context.Background(), input, "s")
			assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
		})
	}
	assert.Zero(t, themer.calls)

	// Out-of-band results are tolerated.
	set, err := svc.Process(context.Background(), makeConcerns(12), "s")
	require.NoError(t, err)
	assert.Len(t, set.Themes, 1)
	assert.Equal(t, 1, themer.calls)
}

func TestKeywordThemer(t *testing.T) {
	themer := NewKeywordThemer()
	for _, n := range []int{1, 2, 3, 5, 10, 15, 21, 25} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			input := makeConcerns(n)
			set, err := themer.Theme(context.Background(), input, "s")
			require.NoError(t, err)
			require.NoError(t, set.Validate())
			assertCoverage(t, input, set)
			assert.True(t, InBand(n, len(set.Themes)), "%d themes for %d concerns", len(set.Themes), n)

			again, err := themer.Theme(context.Background(), input, "s")
			require.NoError(t, err)
			assert.Equal(t, set, again)
		})
	}
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
