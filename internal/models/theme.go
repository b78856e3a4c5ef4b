package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoThemes = errors.New("response contains no themes")

// Theme is a named group of concerns derived by the theming service.
type Theme struct {
	Name     string          `json:"name"`
	Concerns []ThemedConcern `json:"concerns"`
}

// ThemeSet is the theming result.
type ThemeSet struct {
	Themes []Theme `json:"themes"`
}

// Validate checks the result shape: at least one theme, no blank names and
// no theme without concerns.
func (s *ThemeSet) Validate() error {
	if s == nil || len(s.Themes) == 0 {
		return ErrNoThemes
	}
	for i, t := range s.Themes {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("theme %d has no name", i)
		}
		if len(t.Concerns) == 0 {
			return fmt.Errorf("theme %q has no concerns", t.Name)
		}
	}
	return nil
}

// Find looks a theme up by name.
func (s *ThemeSet) Find(name string) (Theme, bool) {
	if s == nil {
		return Theme{}, false
	}
	for _, t := range s.Themes {
		if t.Name == name {
			return t, true
		}
	}
	return Theme{}, false
}

// ConcernCount is the total number of concerns across themes.
func (s *ThemeSet) ConcernCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Themes {
		n += len(t.Concerns)
	}
	return n
}

// NodeLabels lists the distinct node labels touched by the theme, in first-seen order.
func (t Theme) NodeLabels() []string {
	seen := map[string]struct{}{}
	var labels []string
	for _, c := range t.Concerns {
		for _, l := range c.NodeLabels {
			if l == "" {
				continue
			}
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			labels = append(labels, l)
		}
	}
	return labels
}
