package theming

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xaenox/concern-cloud/internal/models"
)

const systemPrompt = "You are a research analysis assistant that groups methodological concerns about research studies into themes."

// reduce keeps only the fields the model needs to see.
func reduce(concerns []models.ThemedConcern) []models.ThemedConcern {
	out := make([]models.ThemedConcern, len(concerns))
	for i, c := range concerns {
		out[i] = models.ThemedConcern{
			ID:          c.ID,
			Text:        c.Text,
			NodeLabels:  c.NodeLabels,
			CommentType: c.CommentType,
			Node:        c.Node,
			ConcernType: c.ConcernType,
			Timestamp:   c.Timestamp,
		}
	}
	return out
}

func bandInstruction(n int) string {
	lo, hi := TargetBand(n)
	if n < 3 {
		return fmt.Sprintf("There are only %d concerns. Still organize them into themes that fit their content (at most %d).", n, hi)
	}
	return fmt.Sprintf("There are %d concerns: produce between %d and %d themes. Too few themes are overly broad, too many are overly granular.", n, lo, hi)
}

// BuildPrompt renders the user message for a theming request.
func BuildPrompt(concerns []models.ThemedConcern) (string, error) {
	payload, err := json.MarshalIndent(reduce(concerns), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode concerns: %w", err)
	}

	rules := []string{
		"Group concerns by the issue described in their text. Do not group them by their commentType tag (for example BIAS or CONFOUND).",
		`Do not create themes that just restate the concern types, such as "BIAS CONCERNS" or "METHODOLOGICAL ISSUES".`,
		"Build themes around the specific variables, procedures or study phases the texts talk about.",
		bandInstruction(len(concerns)),
		`Give every theme a specific 1-2 word name in capitals, for example "DATA INTEGRITY" or "SAMPLE SELECTION".`,
		"Keep the distribution balanced. No single theme should hold most of the concerns.",
		"Copy every concern object unchanged. Never edit, shorten or translate its text.",
		"Place every concern in exactly one theme. Do not drop or repeat any concern.",
	}

	var b strings.Builder
	b.WriteString("Group the following research study concerns into thematic categories.\n\nRULES:\n")
	for i, r := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	b.WriteString(`
Each concern has an id, the text of the concern, the nodeLabels of the study steps it refers to and an optional commentType.

CONCERNS:
`)
	b.Write(payload)
	b.WriteString(`

Respond with a single JSON object of this shape and nothing else:
{"themes": [{"name": "THEME NAME", "concerns": [<original concern objects>]}]}
`)
	return b.String(), nil
}
