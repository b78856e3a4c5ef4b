package presenter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

// Backend is the data access the page needs. *client.Client satisfies it.
type Backend interface {
	ListFlows(ctx context.Context) ([]models.Flow, error)
	ListConcerns(ctx context.Context, flowID, sessionID string) ([]models.Concern, error)
	Theme(ctx context.Context, concerns []models.Concern, sessionID string) (*models.ThemeSet, error)
	ListThemeComments(ctx context.Context, flowID, sessionID, themeName string) ([]models.ThemeComment, error)
	AddThemeComment(ctx context.Context, flowID, sessionID, themeName, text string) (*models.ThemeComment, error)
}

// Renderer draws a theme set. Stop releases any running layout work.
type Renderer interface {
	Render(themes []models.Theme) error
	Stop()
}

type nopRenderer struct{}

func (nopRenderer) Render([]models.Theme) error { return nil }
func (nopRenderer) Stop()                       {}

type Config struct {
	Mode      Mode
	SessionID string
	// FlowID is the externally requested flow, e.g. from a URL parameter.
	FlowID string
	Logger *zap.Logger
}

// Page drives one page lifetime. Methods block on backend calls; a second
// trigger while a request is in flight returns ErrBusy.
type Page struct {
	backend  Backend
	renderer Renderer
	logger   *zap.Logger
	flowID   string

	mu     sync.Mutex
	model  Model
	subs   map[int]func(Model)
	nextID int
	closed bool
}

func NewPage(backend Backend, renderer Renderer, cfg Config) *Page {
	if renderer == nil {
		renderer = nopRenderer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{
		backend:  backend,
		renderer: renderer,
		logger:   logger.With(zap.String("session_id", cfg.SessionID), zap.Stringer("mode", cfg.Mode)),
		flowID:   strings.TrimSpace(cfg.FlowID),
		model:    Model{State: Idle, Mode: cfg.Mode, SessionID: cfg.SessionID},
		subs:     map[int]func(Model){},
	}
}

// Snapshot returns the current model.
func (p *Page) Snapshot() Model {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model
}

// Subscribe registers fn for every state change and returns a cancel func.
func (p *Page) Subscribe(fn func(Model)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Close stops the renderer and drops subscribers. Later triggers fail.
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.subs = map[int]func(Model){}
	p.mu.Unlock()
	p.renderer.Stop()
}

func (p *Page) dispatch(ev Event) (Model, error) {
	p.mu.Lock()
	if p.closed {
		m := p.model
		p.mu.Unlock()
		return m, fmt.Errorf("page closed")
	}
	next, err := Reduce(p.model, ev)
	if err != nil {
		m := p.model
		p.mu.Unlock()
		return m, err
	}
	prev := p.model.State
	p.model = next
	subs := make([]func(Model), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	if prev != next.State {
		p.logger.Debug("state changed",
			zap.Stringer("from", prev), zap.Stringer("to", next.State), zap.String("event", fmt.Sprintf("%T", ev)))
	}
	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}

// Enter loads flows and, in automatic mode, runs the pipeline once for the
// requested flow or the most recently created one.
func (p *Page) Enter(ctx context.Context) error {
	flows, err := p.loadFlows(ctx)
	if err != nil {
		return err
	}

	var requested *models.Flow
	if p.flowID != "" {
		f, ok := models.FindFlow(flows, p.flowID)
		if !ok {
			_, _ = p.dispatch(MarkAttempted{Attempted: true})
			msg := fmt.Sprintf("Flow with ID %q not found. Please select a flow from the dropdown.", p.flowID)
			_, _ = p.dispatch(Fail{Message: msg, ShowPicker: true})
			return apperr.NotFoundf("flow %s not found", p.flowID)
		}
		requested = &f
	}

	if p.Snapshot().Mode == Interactive {
		if requested != nil {
			_, err := p.dispatch(SelectFlow{Flow: *requested})
			return err
		}
		return nil
	}

	if p.Snapshot().Attempted {
		return nil
	}
	_, _ = p.dispatch(MarkAttempted{Attempted: true})

	target := requested
	if target == nil {
		f, ok := models.MostRecent(flows)
		if !ok {
			_, _ = p.dispatch(Fail{Message: MsgNoFlows, ShowPicker: true})
			return nil
		}
		target = &f
	}
	return p.run(ctx, *target)
}

func (p *Page) loadFlows(ctx context.Context) ([]models.Flow, error) {
	if _, err := p.dispatch(LoadFlows{}); err != nil {
		return nil, err
	}
	flows, err := p.backend.ListFlows(ctx)
	if err != nil {
		p.logger.Warn("failed to load flows", zap.Error(err))
		_, _ = p.dispatch(FlowsFailed{Err: err})
		return nil, err
	}
	if _, err := p.dispatch(FlowsLoaded{Flows: flows}); err != nil {
		return nil, err
	}
	return flows, nil
}

// SelectFlow picks a listed flow and runs the pipeline for it.
func (p *Page) SelectFlow(ctx context.Context, id string) error {
	m := p.Snapshot()
	if m.State.Busy() {
		return ErrBusy
	}
	f, ok := models.FindFlow(m.Flows, id)
	if !ok {
		return apperr.NotFoundf("flow %s not found", id)
	}
	return p.run(ctx, f)
}

// ClearSelection returns to the flow picker and stops the cloud.
func (p *Page) ClearSelection() error {
	if _, err := p.dispatch(ClearSelection{}); err != nil {
		return err
	}
	p.renderer.Stop()
	return nil
}

// Refresh reloads the flow list and re-runs the pipeline for the selected flow.
func (p *Page) Refresh(ctx context.Context) error {
	flows, err := p.loadFlows(ctx)
	if err != nil {
		return err
	}
	selected := p.Snapshot().Flow
	if selected == nil {
		return nil
	}
	f, ok := models.FindFlow(flows, selected.ID)
	if !ok {
		return p.ClearSelection()
	}
	return p.run(ctx, f)
}

// ForceGenerate clears the attempted flag and themes, then runs the pipeline
// for the selected flow, or the first listed flow when none is selected.
func (p *Page) ForceGenerate(ctx context.Context) error {
	m := p.Snapshot()
	if m.State.Busy() {
		return ErrBusy
	}
	_, _ = p.dispatch(MarkAttempted{Attempted: false})
	var target models.Flow
	switch {
	case m.Flow != nil:
		target = *m.Flow
	case len(m.Flows) > 0:
		target = m.Flows[0]
	default:
		_, err := p.dispatch(Fail{Message: MsgNoFlows, ShowPicker: true})
		return err
	}
	_, _ = p.dispatch(MarkAttempted{Attempted: true})
	return p.run(ctx, target)
}

// run is the select → concerns → theming → render pipeline.
func (p *Page) run(ctx context.Context, flow models.Flow) error {
	m, err := p.dispatch(LoadConcerns{Flow: flow})
	if err != nil {
		return err
	}
	p.renderer.Stop()
	if m.State == Error {
		return apperr.Invalid(MsgSessionRequired)
	}

	concerns, err := p.backend.ListConcerns(ctx, m.Flow.ID, m.SessionID)
	if err != nil {
		p.logger.Warn("failed to load concerns", zap.String("flow_id", flow.ID), zap.Error(err))
		_, _ = p.dispatch(ConcernsFailed{Err: err})
		return err
	}
	m, err = p.dispatch(ConcernsLoaded{Concerns: concerns})
	if err != nil {
		return err
	}
	if m.State == Empty {
		return nil
	}

	set, err := p.backend.Theme(ctx, concerns, m.SessionID)
	if err != nil {
		p.logger.Warn("theming failed", zap.String("flow_id", flow.ID), zap.Error(err))
		_, _ = p.dispatch(ThemingFailed{Err: err})
		return err
	}
	m, err = p.dispatch(ThemesLoaded{Set: set})
	if err != nil {
		return err
	}
	if m.State == Error {
		return apperr.Processing(MsgInvalidThemes, m.Err)
	}

	p.logger.Info("themes ready",
		zap.String("flow_id", flow.ID), zap.Int("concerns", len(concerns)), zap.Int("themes", len(set.Themes)))
	if err := p.renderer.Render(set.Themes); err != nil {
		p.logger.Warn("render failed", zap.Error(err))
		return err
	}
	return nil
}

// SelectTheme opens the theme detail and loads its comment thread.
func (p *Page) SelectTheme(ctx context.Context, name string) error {
	m, err := p.dispatch(OpenTheme{Name: name})
	if err != nil {
		return err
	}
	comments, err := p.backend.ListThemeComments(ctx, m.Flow.ID, m.SessionID, name)
	if err != nil {
		p.logger.Warn("failed to load theme comments", zap.String("theme", name), zap.Error(err))
		return err
	}
	_, err = p.dispatch(ThemeCommentsLoaded{Name: name, Comments: comments})
	return err
}

// AddThemeComment posts a comment on the open theme and prepends it to the thread.
func (p *Page) AddThemeComment(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.Invalid("Comment text is required")
	}
	m := p.Snapshot()
	if m.Detail == nil || m.Flow == nil {
		return fmt.Errorf("%w: no theme is open", ErrInvalidTransition)
	}
	c, err := p.backend.AddThemeComment(ctx, m.Flow.ID, m.SessionID, m.Detail.Theme.Name, text)
	if err != nil {
		return err
	}
	_, err = p.dispatch(ThemeCommentAdded{Comment: *c})
	return err
}

func (p *Page) CloseTheme() {
	_, _ = p.dispatch(CloseTheme{})
}

func (p *Page) HighlightConcern(id string) error {
	_, err := p.dispatch(HighlightConcern{ID: id})
	return err
}

func (p *Page) ClearHighlight() {
	_, _ = p.dispatch(ClearHighlight{})
}

func (p *Page) ToggleNode(id string) {
	_, _ = p.dispatch(ToggleNode{ID: id})
}
