package layout

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/concern-cloud/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func themes(counts ...int) []models.Theme {
	out := make([]models.Theme, len(counts))
	names := []string{"Sampling", "Blinding Issues", "Attrition", "Randomization Concerns", "Outcome Measurement Validity"}
	for i, n := range counts {
		t := models.Theme{Name: fmt.Sprintf("%s %d", names[i%len(names)], i)}
		if i%3 == 0 {
			t.Name = fmt.Sprintf("Theme%d", i)
		}
		for j := 0; j < n; j++ {
			t.Concerns = append(t.Concerns, models.ThemedConcern{ID: fmt.Sprintf("%d-%d", i, j), Text: "x"})
		}
		out[i] = t
	}
	return out
}

var desktop = Env{ContainerWidth: 1200, ContainerHeight: 700, WindowWidth: 1280, WindowHeight: 900}

func TestComputeViewport(t *testing.T) {
	tests := []struct {
		name string
		env  Env
		want Viewport
	}{
		{"container", desktop, Viewport{1200, 660}},
		{"compact", Env{ContainerWidth: 800, Compact: true}, Viewport{800, 500}},
		{"short container uses window", Env{ContainerWidth: 800, ContainerHeight: 100, WindowHeight: 1000}, Viewport{800, 700}},
		{"capped by window", Env{ContainerWidth: 800, ContainerHeight: 2000, WindowHeight: 1000}, Viewport{800, 900}},
		{"never below minimum", Env{ContainerWidth: 300, ContainerHeight: 300, WindowHeight: 400}, Viewport{300, 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeViewport(tt.env))
		})
	}
}

func TestScaleFor(t *testing.T) {
	assert.Equal(t, 0.7, ScaleFor(500))
	assert.Equal(t, 0.85, ScaleFor(900))
	assert.Equal(t, 1.0, ScaleFor(1440))
}

func TestFontSizeMonotonic(t *testing.T) {
	bubbles := BuildBubbles(themes(1, 7, 3, 12, 3, 5), desktop, ApproxMeasurer{})
	for _, a := range bubbles {
		for _, b := range bubbles {
			if a.Count <= b.Count {
				assert.LessOrEqual(t, a.FontSize, b.FontSize, "%s vs %s", a.Theme, b.Theme)
			}
		}
	}
	assert.InDelta(t, BaseFont, bubbles[0].FontSize, 1e-9)
	assert.InDelta(t, BaseFont+MaxAdditionalFont, bubbles[3].FontSize, 1e-9)
}

func TestFontSizeEqualCounts(t *testing.T) {
	bubbles := BuildBubbles(themes(4, 4, 4), desktop, ApproxMeasurer{})
	want := BaseFont + math.Pow(0.5, SizeExponent)*MaxAdditionalFont
	for _, b := range bubbles {
		assert.InDelta(t, want, b.FontSize, 1e-9)
	}
}

func TestRadiusCoversMeasuredText(t *testing.T) {
	m, err := NewFontMeasurer()
	require.NoError(t, err)
	defer m.Close()

	for _, b := range BuildBubbles(themes(2, 5, 1, 9), desktop, m) {
		assert.Greater(t, b.TextWidth, 0.0)
		assert.GreaterOrEqual(t, b.Radius, math.Hypot(b.TextWidth/1.5, b.TextHeight/1.5))
		assert.GreaterOrEqual(t, b.Radius, b.TextWidth/2)
	}
}

func TestFontMeasurerScalesWithSize(t *testing.T) {
	m, err := NewFontMeasurer()
	require.NoError(t, err)
	defer m.Close()
	w1, h1 := m.Measure("Randomization", 20)
	w2, h2 := m.Measure("Randomization", 40)
	assert.Greater(t, w2, w1)
	assert.Greater(t, h2, h1)
}

func TestFontMeasurerConcurrentUse(t *testing.T) {
	m, err := NewFontMeasurer()
	require.NoError(t, err)
	defer m.Close()
	wantW, wantH := m.Measure("Attrition", 24)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				w, h := m.Measure("Attrition", 24)
				assert.Equal(t, wantW, w)
				assert.Equal(t, wantH, h)
				m.Measure("Blinding", float64(12+j%5))
			}
		}()
	}
	wg.Wait()
}

func TestBubbleColors(t *testing.T) {
	bubbles := BuildBubbles(themes(1, 1, 1, 1), desktop, nil)
	assert.Equal(t, "hsl(0, 70%, 80%)", bubbles[0].Color)
	assert.Equal(t, "hsl(90, 70%, 80%)", bubbles[1].Color)
	assert.Equal(t, []string{"Blinding", "Issues", "1"}, bubbles[1].Lines)
}

func TestSimulationTerminatesInsideViewport(t *testing.T) {
	for n := 1; n <= 20; n++ {
		t.Run(fmt.Sprintf("%d themes", n), func(t *testing.T) {
			counts := make([]int, n)
			for i := range counts {
				counts[i] = 1 + (i*7)%11
			}
			env := desktop
			vp := ComputeViewport(env)
			sim := NewSimulation(BuildBubbles(themes(counts...), env, ApproxMeasurer{}), vp, ScaleFor(env.WindowWidth), SimOptions{Seed: int64(n)})

			started := time.Now()
			ticks := sim.Settle()
			assert.LessOrEqual(t, ticks, DefaultMaxTicks)
			assert.Less(t, time.Since(started), DefaultWindow+time.Second)
			assert.False(t, sim.Tick(), "a settled simulation does not advance")

			for _, b := range sim.Nodes() {
				assert.LessOrEqual(t, math.Abs(b.X), vp.Width/2, b.Theme)
				assert.LessOrEqual(t, math.Abs(b.Y), vp.Height/2, b.Theme)
			}
		})
	}
}

func TestSimulationSeparatesBubbles(t *testing.T) {
	env := Env{ContainerWidth: 1600, ContainerHeight: 1000, WindowWidth: 1600, WindowHeight: 1100}
	vp := ComputeViewport(env)
	sim := NewSimulation(BuildBubbles(themes(3, 3, 3, 3), env, ApproxMeasurer{}), vp, 1, SimOptions{Seed: 7})
	sim.Settle()
	nodes := sim.Nodes()
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			d := math.Hypot(nodes[i].X-nodes[j].X, nodes[i].Y-nodes[j].Y)
			assert.Greater(t, d, (nodes[i].Radius+nodes[j].Radius)*0.8, "%s / %s", nodes[i].Theme, nodes[j].Theme)
		}
	}
}

func TestStuckWatchdogReheats(t *testing.T) {
	bubbles := make([]Bubble, 5)
	for i := range bubbles {
		bubbles[i] = Bubble{Index: i, Radius: 60, Lines: []string{"x"}}
	}
	sim := NewSimulation(bubbles, Viewport{Width: 1000, Height: 800}, 1, SimOptions{Seed: 1})
	assert.True(t, sim.CheckStuck())
	assert.Equal(t, 1, sim.Restarts())

	sim.Settle()
	assert.False(t, sim.CheckStuck())
}

func TestStartStopWaitNoLeak(t *testing.T) {
	sim := NewSimulation(BuildBubbles(themes(1, 2, 3), desktop, nil), ComputeViewport(desktop), 1, SimOptions{TickInterval: time.Millisecond})
	sim.Start()
	sim.Start()
	sim.Stop()
	sim.Stop()
	sim.Wait()

	idle := NewSimulation(nil, ComputeViewport(desktop), 1, SimOptions{})
	idle.Stop()
	idle.Wait()
}

func TestStartHaltsOnItsOwn(t *testing.T) {
	sim := NewSimulation(BuildBubbles(themes(1, 2), desktop, nil), ComputeViewport(desktop), 1,
		SimOptions{TickInterval: time.Millisecond, MaxTicks: 20})
	sim.Start()
	sim.Wait()
	assert.Equal(t, 20, sim.Ticks())
}

func TestCloudRenderAndHitTest(t *testing.T) {
	c := NewCloud(CloudOptions{Env: desktop, Synchronous: true, Logger: zaptest.NewLogger(t)})
	defer c.Stop()

	require.NoError(t, c.Render(themes(2, 6, 4)))
	l := c.Layout()
	require.Len(t, l.Bubbles, 3)
	assert.Greater(t, l.Ticks, 0)

	b := l.Bubbles[1]
	got, ok := c.HitTest(b.X+l.Viewport.Width/2, b.Y+l.Viewport.Height/2)
	require.True(t, ok)
	assert.Equal(t, b.Theme, got.Name)
	assert.Len(t, got.Concerns, 6)

	_, ok = c.HitTest(-1000, -1000)
	assert.False(t, ok)

	require.NoError(t, c.Render(nil))
	assert.Empty(t, c.Layout().Bubbles)
}

func TestCloudResizeIsDebounced(t *testing.T) {
	c := NewCloud(CloudOptions{Env: desktop, Synchronous: true, ResizeDebounce: 20 * time.Millisecond})
	defer c.Stop()
	require.NoError(t, c.Render(themes(1, 2)))

	mobile := Env{ContainerWidth: 600, ContainerHeight: 700, WindowWidth: 600, WindowHeight: 900}
	c.Resize(Env{ContainerWidth: 900, WindowWidth: 900, WindowHeight: 900})
	c.Resize(mobile)
	assert.Equal(t, 1200.0, c.Layout().Viewport.Width)

	require.Eventually(t, func() bool {
		l := c.Layout()
		return l.Viewport.Width == 600 && l.Scale == 0.7
	}, time.Second, 5*time.Millisecond)
}

func TestCloudVisibilityRelayout(t *testing.T) {
	c := NewCloud(CloudOptions{Env: desktop, Synchronous: true})
	defer c.Stop()
	require.NoError(t, c.Render(themes(1, 2)))

	c.VisibilityChanged(false, desktop)
	wide := desktop
	wide.ContainerWidth = 1400
	c.VisibilityChanged(true, wide)
	assert.Equal(t, 1400.0, c.Layout().Viewport.Width)
}

func TestCloudBackgroundStop(t *testing.T) {
	c := NewCloud(CloudOptions{Env: desktop, Sim: SimOptions{TickInterval: time.Millisecond}})
	require.NoError(t, c.Render(themes(1, 2, 3)))
	require.NoError(t, c.Render(themes(4, 5)))
	c.Stop()
	c.Stop()
	assert.Len(t, c.Layout().Bubbles, 2)
}

func TestWriteSVG(t *testing.T) {
	c := NewCloud(CloudOptions{Env: desktop, Synchronous: true})
	defer c.Stop()
	require.NoError(t, c.Render(themes(2, 3)))

	var buf bytes.Buffer
	require.NoError(t, WriteSVG(&buf, c.Layout()))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, xml.Header))
	assert.Equal(t, 2, strings.Count(out, "<circle"))
	assert.Contains(t, out, ">Blinding</text>")

	var doc svgDoc
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Len(t, doc.Root.Groups, 2)
}
