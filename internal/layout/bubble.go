package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/xaenox/concern-cloud/internal/models"
)

// Bubble is one theme in the cloud. X and Y are relative to the viewport center.
type Bubble struct {
	Index    int      `json:"index"`
	Theme    string   `json:"theme"`
	Count    int      `json:"count"`
	Lines    []string `json:"lines"`
	FontSize float64  `json:"fontSize"`
	LineSize float64  `json:"lineSize"`
	Radius   float64  `json:"radius"`
	Color    string   `json:"color"`

	TextWidth  float64 `json:"textWidth"`
	TextHeight float64 `json:"textHeight"`
	Normalized float64 `json:"normalized"`
	Scaled     float64 `json:"scaled"`

	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"-"`
	VY float64 `json:"-"`
}

func (b Bubble) MultiWord() bool { return len(b.Lines) > 1 }

// Contains reports whether a center-relative point falls inside the bubble.
func (b Bubble) Contains(x, y float64) bool {
	return math.Hypot(x-b.X, y-b.Y) <= b.Radius
}

func hsl(i, n int) string {
	return fmt.Sprintf("hsl(%g, 70%%, 80%%)", float64(i)*(360/float64(n)))
}

// BuildBubbles sizes one bubble per theme. Radius comes from the measured
// label bounds plus responsive padding, never less than the font-based
// estimate. Bubbles start on a phyllotaxis spiral around the origin.
func BuildBubbles(themes []models.Theme, env Env, m TextMeasurer) []Bubble {
	if len(themes) == 0 {
		return nil
	}
	if m == nil {
		m = ApproxMeasurer{}
	}
	scale := ScaleFor(env.WindowWidth)
	base, extra := BaseFont, MaxAdditionalFont
	if env.Compact {
		base, extra = CompactBaseFont, CompactMaxAdditional
	}
	base *= scale
	extra *= scale

	lo, hi := len(themes[0].Concerns), len(themes[0].Concerns)
	for _, t := range themes[1:] {
		lo = min(lo, len(t.Concerns))
		hi = max(hi, len(t.Concerns))
	}

	out := make([]Bubble, len(themes))
	for i, t := range themes {
		count := len(t.Concerns)
		words := strings.Fields(t.Name)
		if len(words) == 0 {
			words = []string{t.Name}
		}
		b := Bubble{
			Index:      i,
			Theme:      t.Name,
			Count:      count,
			Lines:      words,
			Normalized: Normalize(count, lo, hi),
			Color:      hsl(i, len(themes)),
		}
		b.Scaled = math.Pow(b.Normalized, SizeExponent)
		b.FontSize = base + b.Scaled*extra

		var padding float64
		if b.MultiWord() {
			b.Radius = b.FontSize * (1.4 + float64(len(words)-1)*0.5) * scale
			b.LineSize = b.FontSize * 0.85
			for _, w := range words {
				width, _ := m.Measure(w, b.LineSize)
				b.TextWidth = math.Max(b.TextWidth, width)
			}
			b.TextHeight = float64(len(words)) * b.LineSize * 1.1
			padding = 15 * scale
		} else {
			b.Radius = b.FontSize * 1.6 * scale
			b.LineSize = b.FontSize
			b.TextWidth, b.TextHeight = m.Measure(words[0], b.FontSize)
			padding = 12 * scale
		}
		measured := math.Hypot(b.TextWidth/1.5, b.TextHeight/1.5) + padding
		b.Radius = math.Max(b.Radius, measured)

		r := 10 * math.Sqrt(0.5+float64(i))
		angle := float64(i) * math.Pi * (3 - math.Sqrt(5))
		b.X, b.Y = r*math.Cos(angle), r*math.Sin(angle)
		out[i] = b
	}
	return out
}
