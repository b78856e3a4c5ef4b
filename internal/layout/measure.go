package layout

import (
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

// TextMeasurer reports the rendered width and height of text at a pixel size.
type TextMeasurer interface {
	Measure(text string, size float64) (width, height float64)
}

// FontMeasurer measures with the Go Bold face, the closest embedded match
// to the heavy display font the cloud is drawn with.
type FontMeasurer struct {
	font *opentype.Font

	mu    sync.Mutex
	faces map[float64]font.Face
}

func NewFontMeasurer() (*FontMeasurer, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "parse go bold")
	}
	return &FontMeasurer{font: f, faces: map[float64]font.Face{}}, nil
}

// faceLocked returns the cached face for size. m.mu must be held.
func (m *FontMeasurer) faceLocked(size float64) (font.Face, error) {
	if f, ok := m.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(m.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		return nil, errors.Wrapf(err, "face at %.1fpx", size)
	}
	m.faces[size] = f
	return f, nil
}

// Measure is safe for concurrent use. Faces keep internal buffers, so
// every use happens under m.mu.
func (m *FontMeasurer) Measure(text string, size float64) (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.faceLocked(size)
	if err != nil {
		return ApproxMeasurer{}.Measure(text, size)
	}
	width := float64(font.MeasureString(f, text)) / 64
	metrics := f.Metrics()
	height := float64(metrics.Ascent+metrics.Descent) / 64
	return width, height
}

func (m *FontMeasurer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for size, f := range m.faces {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(m.faces, size)
	}
	return first
}

// ApproxMeasurer estimates bounds from the rune count.
type ApproxMeasurer struct{}

func (ApproxMeasurer) Measure(text string, size float64) (float64, float64) {
	return 0.6 * size * float64(utf8.RuneCountInString(text)), 1.2 * size
}
