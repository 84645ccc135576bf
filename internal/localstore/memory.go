package localstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/offline"
)

// MemoryStore is an in-process offline.Store. Records are copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	inspections map[string]*model.Inspection
	templates   map[string]*model.Template
	assignments map[string]*model.Assignment
	metadata    map[string]model.SyncMetadata
}

var _ offline.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inspections: make(map[string]*model.Inspection),
		templates:   make(map[string]*model.Template),
		assignments: make(map[string]*model.Assignment),
		metadata:    make(map[string]model.SyncMetadata),
	}
}

func (s *MemoryStore) PutInspection(_ context.Context, rec *model.Inspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspections[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) GetInspection(_ context.Context, id string) (*model.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.inspections[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) ListInspectionsBySyncStatus(_ context.Context, status model.SyncStatus) ([]*model.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Inspection
	for _, rec := range s.inspections {
		if rec.SyncStatus == status {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) CountInspectionsBySyncStatus(_ context.Context, status model.SyncStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.inspections {
		if rec.SyncStatus == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkInspection(_ context.Context, id string, status model.SyncStatus, base *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inspections[id]
	if !ok {
		return ErrNotFound
	}
	rec.SyncStatus = status
	rec.BaseUpdatedAt = nil
	if base != nil {
		t := *base
		rec.BaseUpdatedAt = &t
	}
	return nil
}

func (s *MemoryStore) PutTemplate(_ context.Context, tpl *model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *tpl
	s.templates[tpl.ID] = &c
	return nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id string) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	c := *tpl
	return &c, nil
}

func (s *MemoryStore) ListTemplates(_ context.Context) ([]*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		c := *tpl
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) TouchTemplate(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates[id]
	if !ok {
		return ErrNotFound
	}
	tpl.LastAccessed = at
	return nil
}

func (s *MemoryStore) EvictTemplates(_ context.Context, keep int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep < 0 || len(s.templates) <= keep {
		return nil, nil
	}

	all := make([]*model.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		all = append(all, tpl)
	}
	sortByAccess(all)

	excess := len(all) - keep
	evicted := make([]string, 0, excess)
	for _, tpl := range all[:excess] {
		delete(s.templates, tpl.ID)
		evicted = append(evicted, tpl.ID)
	}
	return evicted, nil
}

func (s *MemoryStore) PutAssignment(_ context.Context, a *model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.assignments[a.ID] = &c
	return nil
}

func (s *MemoryStore) ListAssignments(_ context.Context) ([]*model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetMetadata(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metadata[key]
	return m.Value, ok, nil
}

func (s *MemoryStore) SetMetadata(_ context.Context, key, value string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = model.SyncMetadata{Key: key, Value: value, UpdatedAt: at}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspections = make(map[string]*model.Inspection)
	s.templates = make(map[string]*model.Template)
	s.assignments = make(map[string]*model.Assignment)
	s.metadata = make(map[string]model.SyncMetadata)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// sortByAccess orders templates least recently accessed first, ties by id.
func sortByAccess(ts []*model.Template) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].LastAccessed.Equal(ts[j].LastAccessed) {
			return ts[i].LastAccessed.Before(ts[j].LastAccessed)
		}
		return ts[i].ID < ts[j].ID
	})
}
