// Package theming groups concerns into named themes, either through an LLM
// chat completion or through a deterministic keyword grouping.
package theming

import (
	"context"

	"github.com/xaenox/concern-cloud/internal/models"
)

// Themer groups concerns. Implementations return *apperr.Error values.
type Themer interface {
	Theme(ctx context.Context, concerns []models.ThemedConcern, sessionID string) (*models.ThemeSet, error)
}

// TargetBand is the theme count range requested for n concerns.
func TargetBand(n int) (min, max int) {
	switch {
	case n <= 0:
		return 0, 0
	case n < 3:
		return 1, n
	case n <= 9:
		return 3, 5
	case n <= 20:
		return 5, 8
	default:
		return 8, 15
	}
}

// InBand reports whether themes is an acceptable count for n concerns.
func InBand(n, themes int) bool {
	lo, hi := TargetBand(n)
	return themes >= lo && themes <= hi
}
