package layout

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/models"
)

const DefaultResizeDebounce = 300 * time.Millisecond

// Layout is a snapshot of the cloud.
type Layout struct {
	Viewport Viewport `json:"viewport"`
	Scale    float64  `json:"scale"`
	Bubbles  []Bubble `json:"bubbles"`
	Ticks    int      `json:"ticks"`
	Restarts int      `json:"restarts"`
}

type CloudOptions struct {
	Env            Env
	Measurer       TextMeasurer
	Sim            SimOptions
	ResizeDebounce time.Duration
	// Synchronous settles each render before returning instead of ticking in the background.
	Synchronous bool
	Logger      *zap.Logger
}

// Cloud owns at most one running simulation. Rendering a new theme set,
// a resize, or Stop always halts the previous one first.
type Cloud struct {
	measurer    TextMeasurer
	simOpts     SimOptions
	debounce    time.Duration
	synchronous bool
	logger      *zap.Logger

	mu      sync.Mutex
	env     Env
	themes  []models.Theme
	sim     *Simulation
	resize  *time.Timer
	pending Env
	visible bool
}

func NewCloud(opts CloudOptions) *Cloud {
	if opts.Measurer == nil {
		opts.Measurer = ApproxMeasurer{}
	}
	if opts.ResizeDebounce <= 0 {
		opts.ResizeDebounce = DefaultResizeDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cloud{
		measurer:    opts.Measurer,
		simOpts:     opts.Sim,
		debounce:    opts.ResizeDebounce,
		synchronous: opts.Synchronous,
		logger:      opts.Logger,
		env:         opts.Env,
		visible:     true,
	}
}

// Render replaces the cloud with a new theme set.
func (c *Cloud) Render(themes []models.Theme) error {
	c.mu.Lock()
	c.themes = append([]models.Theme(nil), themes...)
	sim := c.rebuildLocked()
	c.mu.Unlock()

	if sim != nil && c.synchronous {
		sim.Settle()
	}
	return nil
}

// rebuildLocked stops the current simulation and starts one for the
// current themes and env. c.mu must be held.
func (c *Cloud) rebuildLocked() *Simulation {
	if c.sim != nil {
		c.sim.Stop()
		c.sim.Wait()
		c.sim = nil
	}
	if len(c.themes) == 0 {
		return nil
	}
	vp := ComputeViewport(c.env)
	scale := ScaleFor(c.env.WindowWidth)
	bubbles := BuildBubbles(c.themes, c.env, c.measurer)
	c.sim = NewSimulation(bubbles, vp, scale, c.simOpts)
	c.logger.Debug("layout started",
		zap.Int("bubbles", len(bubbles)), zap.Float64("width", vp.Width), zap.Float64("height", vp.Height), zap.Float64("scale", scale))
	if !c.synchronous {
		c.sim.Start()
	}
	return c.sim
}

// Resize schedules a relayout once the size has been stable for the debounce interval.
func (c *Cloud) Resize(env Env) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = env
	if c.resize != nil {
		c.resize.Stop()
	}
	c.resize = time.AfterFunc(c.debounce, c.applyResize)
}

func (c *Cloud) applyResize() {
	c.mu.Lock()
	if c.resize == nil {
		c.mu.Unlock()
		return
	}
	c.resize = nil
	c.env = c.pending
	sim := c.rebuildLocked()
	c.mu.Unlock()
	if sim != nil && c.synchronous {
		sim.Settle()
	}
}

// VisibilityChanged re-measures on return to the foreground, since a hidden
// page may have stale dimensions, and reheats a layout stuck at the origin.
func (c *Cloud) VisibilityChanged(visible bool, env Env) {
	c.mu.Lock()
	wasVisible := c.visible
	c.visible = visible
	if !visible || wasVisible {
		c.mu.Unlock()
		return
	}
	if ComputeViewport(env) != ComputeViewport(c.env) || ScaleFor(env.WindowWidth) != ScaleFor(c.env.WindowWidth) {
		c.env = env
		sim := c.rebuildLocked()
		c.mu.Unlock()
		if sim != nil && c.synchronous {
			sim.Settle()
		}
		return
	}
	sim := c.sim
	c.mu.Unlock()
	if sim != nil && sim.CheckStuck() {
		c.logger.Info("layout reheated after visibility change")
	}
}

// Layout returns the current bubble positions.
func (c *Cloud) Layout() Layout {
	c.mu.Lock()
	sim, env := c.sim, c.env
	c.mu.Unlock()
	l := Layout{Viewport: ComputeViewport(env), Scale: ScaleFor(env.WindowWidth)}
	if sim != nil {
		l.Bubbles = sim.Nodes()
		l.Ticks = sim.Ticks()
		l.Restarts = sim.Restarts()
	}
	return l
}

// HitTest maps a click in viewport coordinates (origin top-left) to a theme.
func (c *Cloud) HitTest(x, y float64) (models.Theme, bool) {
	l := c.Layout()
	cx, cy := x-l.Viewport.Width/2, y-l.Viewport.Height/2
	for i := len(l.Bubbles) - 1; i >= 0; i-- {
		b := l.Bubbles[i]
		if !b.Contains(cx, cy) {
			continue
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if b.Index < len(c.themes) {
			return c.themes[b.Index], true
		}
		return models.Theme{}, false
	}
	return models.Theme{}, false
}

// Wait blocks until the current simulation has halted.
func (c *Cloud) Wait() {
	c.mu.Lock()
	sim := c.sim
	c.mu.Unlock()
	if sim != nil {
		sim.Wait()
	}
}

// Stop halts the simulation and any pending resize. The last layout stays readable.
func (c *Cloud) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resize != nil {
		c.resize.Stop()
		c.resize = nil
	}
	if c.sim != nil {
		c.sim.Stop()
		c.sim.Wait()
	}
}
