package theming

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

type rawResponse struct {
	Themes *[]struct {
		Name     string `json:"name"`
		Concerns []struct {
			ID   json.RawMessage `json:"id"`
			Text string          `json:"text"`
		} `json:"concerns"`
	} `json:"themes"`
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// rawID accepts string or numeric ids as models tend to emit both.
func rawID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// ParseResponse decodes a model reply and rebuilds every theme from the
// submitted concerns, so returned text is always the submitted text. Items
// the model invented or repeated are dropped; any submitted concern missing
// from the result fails the whole response.
func ParseResponse(raw string, input []models.ThemedConcern) (*models.ThemeSet, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripFences(raw))))
	var resp rawResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, apperr.Processing("theming response is not valid JSON", err)
	}
	if dec.More() {
		return nil, apperr.Processing("theming response has trailing data", nil)
	}
	if resp.Themes == nil || len(*resp.Themes) == 0 {
		return nil, apperr.Processing("theming response has no themes", models.ErrNoThemes)
	}

	byID := make(map[string]int, len(input))
	byText := make(map[string][]int, len(input))
	for i, c := range input {
		byID[c.ID] = i
		byText[c.Text] = append(byText[c.Text], i)
	}

	assigned := make([]bool, len(input))
	claim := func(id, text string) (int, bool) {
		if i, ok := byID[id]; ok && id != "" {
			if assigned[i] {
				return 0, false
			}
			assigned[i] = true
			return i, true
		}
		for _, i := range byText[text] {
			if !assigned[i] {
				assigned[i] = true
				return i, true
			}
		}
		return 0, false
	}

	set := &models.ThemeSet{}
	position := map[string]int{}
	for ti, t := range *resp.Themes {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, apperr.Processing("theming response has a theme without a name", nil).WithDetail("theme", ti)
		}
		var members []models.ThemedConcern
		for _, c := range t.Concerns {
			if i, ok := claim(rawID(c.ID), c.Text); ok {
				members = append(members, input[i])
			}
		}
		if len(members) == 0 {
			continue
		}
		if p, ok := position[name]; ok {
			set.Themes[p].Concerns = append(set.Themes[p].Concerns, members...)
			continue
		}
		position[name] = len(set.Themes)
		set.Themes = append(set.Themes, models.Theme{Name: name, Concerns: members})
	}

	var missing []string
	for i, ok := range assigned {
		if !ok {
			missing = append(missing, input[i].ID)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Processing("theming response left concerns ungrouped", nil).
			WithDetail("missing", missing)
	}
	if err := set.Validate(); err != nil {
		if errors.Is(err, models.ErrNoThemes) {
			return nil, apperr.Processing("theming response has no usable themes", err)
		}
		return nil, apperr.Processing("theming response is malformed", err)
	}
	return set, nil
}
