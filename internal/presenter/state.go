// Package presenter sequences flow selection, concern loading, theming and
// rendering as one explicit state machine.
package presenter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xaenox/concern-cloud/internal/models"
)

type State int

const (
	Idle State = iota
	FlowsLoading
	FlowSelected
	ConcernsLoading
	Processing
	Themed
	// Empty is the terminal state for a flow without concerns. It is not a failure.
	Empty
	Error
)

var stateNames = map[State]string{
	Idle:            "idle",
	FlowsLoading:    "flows-loading",
	FlowSelected:    "flow-selected",
	ConcernsLoading: "concerns-loading",
	Processing:      "processing",
	Themed:          "themed",
	Empty:           "empty",
	Error:           "error",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stage is the spinner label for loading states, empty otherwise.
func (s State) Stage() string {
	switch s {
	case FlowsLoading:
		return "Loading flows..."
	case ConcernsLoading:
		return "Loading concerns..."
	case Processing:
		return "Processing with AI..."
	}
	return ""
}

// Busy states disable every trigger that would start another request.
func (s State) Busy() bool {
	return s == FlowsLoading || s == ConcernsLoading || s == Processing
}

type Mode int

const (
	// Automatic selects a flow and runs the pipeline on page entry.
	Automatic Mode = iota
	// Interactive waits for the user and exposes raw concern tables.
	Interactive
)

func (m Mode) String() string {
	if m == Interactive {
		return "interactive"
	}
	return "automatic"
}

const (
	MsgSessionRequired = "Session ID is required"
	MsgNoConcerns      = "No concerns found for this flow"
	MsgNoFlows         = "No flows available to generate word cloud"
	MsgInvalidThemes   = "Received invalid data from processing service"
)

var (
	// ErrBusy rejects a trigger while a load or theming request is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrInvalidTransition rejects an event the current state cannot accept.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Overlay holds transient highlight and selection flags. It is never persisted.
type Overlay struct {
	HighlightedConcern string
	HighlightedNodes   []string
	SelectedNodes      []string
}

// ThemeDetail is the open theme panel.
type ThemeDetail struct {
	Theme         models.Theme
	AffectedNodes string
	Comments      []models.ThemeComment
}

// Model is the full page state. Slices are never mutated in place, so a
// Model value can be shared after it leaves the reducer.
type Model struct {
	State      State
	Mode       Mode
	SessionID  string
	Flows      []models.Flow
	Flow       *models.Flow
	Concerns   []models.Concern
	Themes     *models.ThemeSet
	Message    string
	Err        error
	Attempted  bool
	ShowPicker bool
	Detail     *ThemeDetail
	Overlay    Overlay
}

type Event interface{ event() }

type (
	LoadFlows      struct{}
	FlowsLoaded    struct{ Flows []models.Flow }
	FlowsFailed    struct{ Err error }
	SelectFlow     struct{ Flow models.Flow }
	ClearSelection struct{}
	// LoadConcerns selects Flow and starts loading its concerns in one step.
	LoadConcerns   struct{ Flow models.Flow }
	ConcernsLoaded struct{ Concerns []models.Concern }
	ConcernsFailed struct{ Err error }
	ThemesLoaded   struct{ Set *models.ThemeSet }
	ThemingFailed  struct{ Err error }
	MarkAttempted  struct{ Attempted bool }
	// Fail moves to Error outside of a request, e.g. an unknown flow id.
	Fail struct {
		Message    string
		ShowPicker bool
	}
	OpenTheme           struct{ Name string }
	ThemeCommentsLoaded struct {
		Name     string
		Comments []models.ThemeComment
	}
	ThemeCommentAdded struct{ Comment models.ThemeComment }
	CloseTheme        struct{}
	HighlightConcern  struct{ ID string }
	ClearHighlight    struct{}
	ToggleNode        struct{ ID string }
)

func (LoadFlows) event()           {}
func (FlowsLoaded) event()         {}
func (FlowsFailed) event()         {}
func (SelectFlow) event()          {}
func (ClearSelection) event()      {}
func (LoadConcerns) event()        {}
func (ConcernsLoaded) event()      {}
func (ConcernsFailed) event()      {}
func (ThemesLoaded) event()        {}
func (ThemingFailed) event()       {}
func (MarkAttempted) event()       {}
func (Fail) event()                {}
func (OpenTheme) event()           {}
func (ThemeCommentsLoaded) event() {}
func (ThemeCommentAdded) event()   {}
func (CloseTheme) event()          {}
func (HighlightConcern) event()    {}
func (ClearHighlight) event()      {}
func (ToggleNode) event()          {}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// clearResults drops everything derived from the selected flow.
func clearResults(m Model) Model {
	m.Concerns = nil
	m.Themes = nil
	m.Detail = nil
	m.Overlay = Overlay{}
	m.Message = ""
	m.Err = nil
	return m
}

// Reduce applies one event. It never performs I/O.
func Reduce(m Model, ev Event) (Model, error) {
	switch e := ev.(type) {
	case LoadFlows:
		if m.State.Busy() {
			return m, ErrBusy
		}
		m.State = FlowsLoading
		m.Message, m.Err = "", nil
		return m, nil

	case FlowsLoaded:
		if m.State != FlowsLoading {
			return m, ErrInvalidTransition
		}
		m.Flows = e.Flows
		if m.Flow != nil {
			m.State = FlowSelected
		} else {
			m.State = Idle
		}
		return m, nil

	case FlowsFailed:
		if m.State != FlowsLoading {
			return m, ErrInvalidTransition
		}
		m.State = Error
		m.Err = e.Err
		m.Message = "Failed to load flowcharts. Please try again. " + errorMessage(e.Err)
		return m, nil

	case SelectFlow:
		if m.State.Busy() {
			return m, ErrBusy
		}
		m = clearResults(m)
		flow := e.Flow
		m.Flow = &flow
		m.ShowPicker = false
		m.State = FlowSelected
		return m, nil

	case ClearSelection:
		if m.State.Busy() {
			return m, ErrBusy
		}
		m = clearResults(m)
		m.Flow = nil
		m.ShowPicker = true
		m.State = Idle
		return m, nil

	case LoadConcerns:
		if m.State.Busy() {
			return m, ErrBusy
		}
		m = clearResults(m)
		flow := e.Flow
		m.Flow = &flow
		m.ShowPicker = false
		if m.SessionID == "" {
			m.State = Error
			m.Message = MsgSessionRequired
			return m, nil
		}
		m.State = ConcernsLoading
		return m, nil

	case ConcernsLoaded:
		if m.State != ConcernsLoading {
			return m, ErrInvalidTransition
		}
		m.Concerns = e.Concerns
		if len(e.Concerns) == 0 {
			m.State = Empty
			m.Message = MsgNoConcerns
			return m, nil
		}
		m.State = Processing
		return m, nil

	case ConcernsFailed:
		if m.State != ConcernsLoading {
			return m, ErrInvalidTransition
		}
		m.State = Error
		m.Err = e.Err
		m.Message = "Failed to load concerns. " + errorMessage(e.Err)
		return m, nil

	case ThemesLoaded:
		if m.State != Processing {
			return m, ErrInvalidTransition
		}
		if err := e.Set.Validate(); err != nil {
			m.State = Error
			m.Err = err
			m.Message = MsgInvalidThemes
			return m, nil
		}
		m.Themes = e.Set
		m.State = Themed
		return m, nil

	case ThemingFailed:
		if m.State != Processing {
			return m, ErrInvalidTransition
		}
		m.State = Error
		m.Err = e.Err
		m.Message = "Failed to process concerns. " + errorMessage(e.Err)
		return m, nil

	case MarkAttempted:
		m.Attempted = e.Attempted
		return m, nil

	case Fail:
		if m.State.Busy() {
			return m, ErrBusy
		}
		m.State = Error
		m.Message = e.Message
		m.ShowPicker = e.ShowPicker
		return m, nil

	case OpenTheme:
		if m.State != Themed {
			return m, ErrInvalidTransition
		}
		theme, ok := m.Themes.Find(e.Name)
		if !ok {
			return m, fmt.Errorf("%w: no theme named %q", ErrInvalidTransition, e.Name)
		}
		m.Detail = &ThemeDetail{
			Theme:         theme,
			AffectedNodes: models.AffectedNodesText(theme.NodeLabels()),
		}
		return m, nil

	case ThemeCommentsLoaded:
		if m.Detail == nil || m.Detail.Theme.Name != e.Name {
			return m, nil
		}
		d := *m.Detail
		d.Comments = e.Comments
		m.Detail = &d
		return m, nil

	case ThemeCommentAdded:
		if m.Detail == nil || m.Detail.Theme.Name != e.Comment.ThemeName {
			return m, nil
		}
		d := *m.Detail
		d.Comments = append([]models.ThemeComment{e.Comment}, d.Comments...)
		m.Detail = &d
		return m, nil

	case CloseTheme:
		m.Detail = nil
		return m, nil

	case HighlightConcern:
		c, ok := findConcern(m, e.ID)
		if !ok {
			return m, fmt.Errorf("%w: no concern %q", ErrInvalidTransition, e.ID)
		}
		m.Overlay.HighlightedConcern = c.ID
		m.Overlay.HighlightedNodes = append([]string(nil), c.NodeIDs...)
		return m, nil

	case ClearHighlight:
		m.Overlay.HighlightedConcern = ""
		m.Overlay.HighlightedNodes = nil
		return m, nil

	case ToggleNode:
		m.Overlay.SelectedNodes = toggle(m.Overlay.SelectedNodes, e.ID)
		return m, nil
	}
	return m, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
}

func findConcern(m Model, id string) (models.Concern, bool) {
	for _, c := range m.Concerns {
		if c.ID == id {
			return c, true
		}
	}
	return models.Concern{}, false
}

func toggle(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
