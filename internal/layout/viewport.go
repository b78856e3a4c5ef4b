// Package layout turns a theme set into a collision-free bubble cloud using a
// bounded force relaxation, and renders it as SVG.
package layout

import "math"

const (
	BaseFont              = 20.0
	MaxAdditionalFont     = 32.0
	CompactBaseFont       = 16.0
	CompactMaxAdditional  = 24.0
	SizeExponent          = 0.7
	MinViewportHeight     = 500.0
	defaultViewportWidth  = 960.0
	defaultWindowHeight   = 800.0
	containerHeightMargin = 40.0
)

// Env describes the space the cloud is drawn into. Compact is the debug
// rendering with smaller fonts and a fixed height.
type Env struct {
	ContainerWidth  float64
	ContainerHeight float64
	WindowWidth     float64
	WindowHeight    float64
	Compact         bool
}

type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ComputeViewport derives the drawing area from the container and window.
func ComputeViewport(env Env) Viewport {
	width := env.ContainerWidth
	if width <= 0 {
		width = env.WindowWidth
	}
	if width <= 0 {
		width = defaultViewportWidth
	}

	if env.Compact {
		return Viewport{Width: width, Height: MinViewportHeight}
	}

	window := env.WindowHeight
	if window <= 0 {
		window = defaultWindowHeight
	}
	var height float64
	if env.ContainerHeight > 200 {
		height = env.ContainerHeight - containerHeightMargin
	} else {
		height = math.Max(MinViewportHeight, window*0.7)
	}
	height = math.Min(height, window*0.9)
	height = math.Max(height, MinViewportHeight)
	return Viewport{Width: width, Height: height}
}

// ScaleFor is the discrete size multiplier for a window width.
func ScaleFor(windowWidth float64) float64 {
	switch {
	case windowWidth > 0 && windowWidth < 768:
		return 0.7
	case windowWidth > 0 && windowWidth < 1024:
		return 0.85
	}
	return 1.0
}

// Normalize maps count into [0,1] over [lo,hi]; equal bounds give 0.5.
func Normalize(count, lo, hi int) float64 {
	if hi <= lo {
		return 0.5
	}
	n := float64(count-lo) / float64(hi-lo)
	return math.Max(0, math.Min(1, n))
}

// FontSize is base + normalized^SizeExponent * maxAdditional.
func FontSize(count, lo, hi int, base, maxAdditional float64) float64 {
	return base + math.Pow(Normalize(count, lo, hi), SizeExponent)*maxAdditional
}
