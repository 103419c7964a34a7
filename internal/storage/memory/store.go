// Package memory keeps projects in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"taskit/internal/models"
	"taskit/internal/storage"
)

// Store is an in-memory storage.Store. Projects are deep-copied on the way in
// and out so callers never share state with the store.
type Store struct {
	mu       sync.RWMutex
	order    []string
	projects map[string]models.Project
}

// New creates an empty store.
func New() *Store {
	return &Store{projects: make(map[string]models.Project)}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) CreateProject(_ context.Context, p models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; ok {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	s.projects[p.ID] = clone(p)
	s.order = append(s.order, p.ID)
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return models.Project{}, storage.ErrNotFound
	}
	return clone(p), nil
}

func (s *Store) ListProjects(_ context.Context, f storage.Filter) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Project
	for _, id := range s.order {
		if p := s.projects[id]; f.Match(p) {
			out = append(out, clone(p))
		}
	}
	return out, nil
}

// Update works on a copy and only stores it when fn succeeds.
func (s *Store) Update(_ context.Context, id string, fn storage.Mutator) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return models.Project{}, storage.ErrNotFound
	}
	working := clone(p)
	if err := fn(&working); err != nil {
		return models.Project{}, err
	}
	s.projects[id] = clone(working)
	return working, nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.projects, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

func clone(p models.Project) models.Project {
	out := p
	if p.EndDate != nil {
		end := *p.EndDate
		out.EndDate = &end
	}
	out.Tasks = append([]models.Task(nil), p.Tasks...)
	out.Sprints = make([]models.Sprint, len(p.Sprints))
	for i, sp := range p.Sprints {
		sp.TaskIDs = append([]string(nil), sp.TaskIDs...)
		out.Sprints[i] = sp
	}
	return out
}
