package layout

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultMaxTicks     = 180
	DefaultWindow       = 3 * time.Second
	DefaultTickInterval = time.Second / 60

	alphaMin       = 0.001
	velocityDecay  = 0.4
	reheatAlpha    = 0.3
	stuckThreshold = 50.0
	stuckFraction  = 0.7
	// 60 ticks is one second at the default tick rate.
	stuckCheckEvery = 60
	stuckCheckUntil = 300
)

var alphaDecay = 1 - math.Pow(alphaMin, 1.0/300)

type SimOptions struct {
	MaxTicks     int
	Window       time.Duration
	TickInterval time.Duration
	Seed         int64
}

func (o SimOptions) withDefaults() SimOptions {
	if o.MaxTicks <= 0 {
		o.MaxTicks = DefaultMaxTicks
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	return o
}

// Simulation relaxes bubbles with centering, collision, weak springs toward
// the origin and radius-weighted repulsion. It always halts after MaxTicks
// or the wall-clock window, whichever comes first.
type Simulation struct {
	opts     SimOptions
	viewport Viewport
	scale    float64
	rng      *rand.Rand

	mu       sync.Mutex
	nodes    []Bubble
	alpha    float64
	ticks    int
	restarts int

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewSimulation(bubbles []Bubble, vp Viewport, scale float64, opts SimOptions) *Simulation {
	opts = opts.withDefaults()
	nodes := make([]Bubble, len(bubbles))
	copy(nodes, bubbles)
	s := &Simulation{
		opts:     opts,
		viewport: vp,
		scale:    scale,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		nodes:    nodes,
		alpha:    1,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.clamp()
	return s
}

// Start runs the tick loop on its own goroutine.
func (s *Simulation) Start() {
	s.startOnce.Do(func() {
		go s.loop()
	})
}

func (s *Simulation) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.opts.Window)
	defer deadline.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			if !s.Tick() {
				return
			}
		}
	}
}

// Stop halts the loop. Safe to call any number of times, before or after Start.
func (s *Simulation) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.startOnce.Do(func() { close(s.done) })
}

// Wait blocks until the loop has exited. Call Start or Stop first.
func (s *Simulation) Wait() {
	<-s.done
}

// Settle runs the relaxation synchronously to completion. A settled
// simulation counts as finished for Wait.
func (s *Simulation) Settle() int {
	defer s.startOnce.Do(func() { close(s.done) })
	started := time.Now()
	for time.Since(started) < s.opts.Window {
		select {
		case <-s.stop:
			return s.Ticks()
		default:
		}
		if !s.Tick() {
			break
		}
	}
	return s.Ticks()
}

func (s *Simulation) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func (s *Simulation) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Nodes returns a copy of the current bubble positions.
func (s *Simulation) Nodes() []Bubble {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Bubble, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Tick advances one step and reports whether the simulation should continue.
func (s *Simulation) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticks >= s.opts.MaxTicks || s.alpha < alphaMin {
		return false
	}
	s.alpha += (0 - s.alpha) * alphaDecay
	s.center()
	s.springs()
	s.charge()
	s.collide()
	for i := range s.nodes {
		n := &s.nodes[i]
		n.VX *= 1 - velocityDecay
		n.VY *= 1 - velocityDecay
		n.X += n.VX
		n.Y += n.VY
	}
	s.clamp()
	s.ticks++
	if s.ticks%stuckCheckEvery == 0 && s.ticks <= stuckCheckUntil {
		s.unstick()
	}
	return s.ticks < s.opts.MaxTicks && s.alpha >= alphaMin
}

// CheckStuck reheats the simulation if most bubbles sit at the origin.
func (s *Simulation) CheckStuck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unstick()
}

func (s *Simulation) stuck() bool {
	if len(s.nodes) < 2 {
		return false
	}
	clustered := 0
	for _, n := range s.nodes {
		if math.Abs(n.X) < stuckThreshold && math.Abs(n.Y) < stuckThreshold {
			clustered++
		}
	}
	return float64(clustered) > float64(len(s.nodes))*stuckFraction
}

func (s *Simulation) unstick() bool {
	if !s.stuck() {
		return false
	}
	s.alpha = reheatAlpha
	s.restarts++
	for i := range s.nodes {
		n := &s.nodes[i]
		n.X += (s.rng.Float64()*2 - 1) * n.Radius
		n.Y += (s.rng.Float64()*2 - 1) * n.Radius
	}
	return true
}

func (s *Simulation) jiggle() float64 {
	return (s.rng.Float64() - 0.5) * 1e-6
}

func (s *Simulation) center() {
	if len(s.nodes) == 0 {
		return
	}
	var sx, sy float64
	for _, n := range s.nodes {
		sx += n.X
		sy += n.Y
	}
	sx /= float64(len(s.nodes))
	sy /= float64(len(s.nodes))
	for i := range s.nodes {
		s.nodes[i].X -= sx
		s.nodes[i].Y -= sy
	}
}

func (s *Simulation) springs() {
	const strength = 0.03
	for i := range s.nodes {
		n := &s.nodes[i]
		n.VX += (0 - n.X) * strength * s.alpha
		n.VY += (0 - n.Y) * strength * s.alpha
	}
}

func (s *Simulation) charge() {
	for i := range s.nodes {
		a := &s.nodes[i]
		for j := range s.nodes {
			if i == j {
				continue
			}
			b := s.nodes[j]
			dx, dy := b.X-a.X, b.Y-a.Y
			if dx == 0 {
				dx = s.jiggle()
			}
			if dy == 0 {
				dy = s.jiggle()
			}
			l2 := dx*dx + dy*dy
			if l2 == 0 {
				continue
			}
			if l2 < 1 {
				l2 = math.Sqrt(l2)
			}
			strength := -math.Pow(b.Radius, 1.4) * 0.6
			a.VX += dx * strength * s.alpha / l2
			a.VY += dy * strength * s.alpha / l2
		}
	}
}

func (s *Simulation) collide() {
	const strength = 0.7
	pad := 8 * s.scale
	for i := range s.nodes {
		a := &s.nodes[i]
		ri := a.Radius + pad
		xi, yi := a.X+a.VX, a.Y+a.VY
		for j := i + 1; j < len(s.nodes); j++ {
			b := &s.nodes[j]
			rj := b.Radius + pad
			r := ri + rj
			x := xi - b.X - b.VX
			y := yi - b.Y - b.VY
			l := x*x + y*y
			if l >= r*r {
				continue
			}
			if x == 0 {
				x = s.jiggle()
				l += x * x
			}
			if y == 0 {
				y = s.jiggle()
				l += y * y
			}
			l = math.Sqrt(l)
			if l == 0 {
				continue
			}
			l = (r - l) / l * strength
			x *= l
			y *= l
			share := rj * rj / (ri*ri + rj*rj)
			a.VX += x * share
			a.VY += y * share
			b.VX -= x * (1 - share)
			b.VY -= y * (1 - share)
		}
	}
}

// clamp keeps every center within 95% of the half extents, inset by its radius.
func (s *Simulation) clamp() {
	for i := range s.nodes {
		n := &s.nodes[i]
		maxX := math.Max(0, s.viewport.Width/2*0.95-n.Radius)
		maxY := math.Max(0, s.viewport.Height/2*0.95-n.Radius)
		n.X = math.Max(-maxX, math.Min(maxX, n.X))
		n.Y = math.Max(-maxY, math.Min(maxY, n.Y))
	}
}
