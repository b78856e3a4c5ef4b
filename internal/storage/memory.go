package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

type memFlow struct {
	seq  uint64
	flow models.Flow
}

type memConcern struct {
	seq     uint64
	concern models.Concern
}

type memThemeComment struct {
	seq     uint64
	comment models.ThemeComment
}

// MemoryStorage keeps everything in maps. Records carry an insertion
// sequence so equal timestamps still order deterministically.
type MemoryStorage struct {
	mu            sync.RWMutex
	seq           uint64
	flows         map[string]*memFlow
	concerns      map[string]*memConcern
	themeComments map[string]*memThemeComment
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		flows:         make(map[string]*memFlow),
		concerns:      make(map[string]*memConcern),
		themeComments: make(map[string]*memThemeComment),
	}
}

func (s *MemoryStorage) next() uint64 {
	s.seq++
	return s.seq
}

// Flow methods
func (s *MemoryStorage) CreateFlow(ctx context.Context, flow *models.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	if _, exists := s.flows[flow.ID]; exists {
		return apperr.Invalid("flow %s already exists", flow.ID)
	}
	ts := now()
	flow.CreatedAt = ts
	flow.UpdatedAt = ts
	if flow.CreatedDate.IsZero() {
		flow.CreatedDate = ts
	}
	s.flows[flow.ID] = &memFlow{seq: s.next(), flow: *flow}
	return nil
}

func (s *MemoryStorage) ListFlows(ctx context.Context) ([]models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*memFlow, 0, len(s.flows))
	for _, f := range s.flows {
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	flows := make([]models.Flow, len(entries))
	for i, e := range entries {
		flows[i] = e.flow
	}
	return flows, nil
}

func (s *MemoryStorage) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, exists := s.flows[id]; exists {
		flow := f.flow
		return &flow, nil
	}
	return nil, apperr.NotFoundf("flow %s not found", id)
}

func (s *MemoryStorage) UpdateFlowchart(ctx context.Context, id, flowchart string) (*models.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.flows[id]
	if !exists {
		return nil, apperr.NotFoundf("flow %s not found", id)
	}
	f.flow.Flowchart = flowchart
	f.flow.UpdatedAt = now()
	flow := f.flow
	return &flow, nil
}

// Concern methods
func (s *MemoryStorage) CreateConcern(ctx context.Context, concern *models.Concern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if concern.ID == "" {
		concern.ID = uuid.NewString()
	}
	if concern.Timestamp.IsZero() {
		concern.Timestamp = now()
	}
	stored := *concern
	stored.NodeIDs = cloneStrings(concern.NodeIDs)
	stored.NodeLabels = cloneStrings(concern.NodeLabels)
	s.concerns[concern.ID] = &memConcern{seq: s.next(), concern: stored}
	return nil
}

func (s *MemoryStorage) ListConcerns(ctx context.Context, flowID, sessionID string) ([]models.Concern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*memConcern
	for _, c := range s.concerns {
		if c.concern.FlowID == flowID && c.concern.SessionID == sessionID {
			entries = append(entries, c)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.concern.Timestamp.Equal(b.concern.Timestamp) {
			return a.concern.Timestamp.After(b.concern.Timestamp)
		}
		return a.seq > b.seq
	})

	concerns := make([]models.Concern, len(entries))
	for i, e := range entries {
		concerns[i] = e.concern
		concerns[i].NodeIDs = cloneStrings(e.concern.NodeIDs)
		concerns[i].NodeLabels = cloneStrings(e.concern.NodeLabels)
	}
	return concerns, nil
}

func (s *MemoryStorage) DeleteConcern(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.concerns[id]; !exists {
		return apperr.NotFoundf("comment not found")
	}
	delete(s.concerns, id)
	return nil
}

// ThemeComment methods
func (s *MemoryStorage) CreateThemeComment(ctx context.Context, comment *models.ThemeComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.Timestamp.IsZero() {
		comment.Timestamp = now()
	}
	s.themeComments[comment.ID] = &memThemeComment{seq: s.next(), comment: *comment}
	return nil
}

func (s *MemoryStorage) ListThemeComments(ctx context.Context, flowID, sessionID, themeName string) ([]models.ThemeComment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*memThemeComment
	for _, c := range s.themeComments {
		if c.comment.FlowID == flowID && c.comment.SessionID == sessionID && c.comment.ThemeName == themeName {
			entries = append(entries, c)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.comment.Timestamp.Equal(b.comment.Timestamp) {
			return a.comment.Timestamp.After(b.comment.Timestamp)
		}
		return a.seq > b.seq
	})

	comments := make([]models.ThemeComment, len(entries))
	for i, e := range entries {
		comments[i] = e.comment
	}
	return comments, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
