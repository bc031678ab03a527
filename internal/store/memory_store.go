package store

import (
	"context"
	"sync"
	"time"

	"github.com/svaia/api/internal/model"
)

// MemoryProjectStore is a process-local ProjectStore for development and tests.
type MemoryProjectStore struct {
	mu       sync.Mutex
	projects map[model.ProjectKey]*model.Project
}

func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{projects: make(map[model.ProjectKey]*model.Project)}
}

func (s *MemoryProjectStore) Save(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cp := *p
	if existing, ok := s.projects[p.Key()]; ok {
		cp.CreatedAt = existing.CreatedAt
		cp.Report = existing.Report
		cp.InProcess = existing.InProcess
	} else {
		cp.CreatedAt = now
		cp.InProcess = false
	}
	cp.ModificationDate = now
	s.projects[p.Key()] = &cp

	p.CreatedAt, p.ModificationDate = cp.CreatedAt, cp.ModificationDate
	p.Report, p.InProcess = cp.Report, cp.InProcess
	return nil
}

func (s *MemoryProjectStore) Get(_ context.Context, key model.ProjectKey) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryProjectStore) List(_ context.Context, email string) ([]*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]model.ProjectKey, 0, len(s.projects))
	for k := range s.projects {
		if email == "" || k.Email == email {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)

	out := make([]*model.Project, 0, len(keys))
	for _, k := range keys {
		cp := *s.projects[k]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryProjectStore) InProcess(_ context.Context, email string) ([]model.ProjectKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []model.ProjectKey{}
	for k, p := range s.projects {
		if p.InProcess && (email == "" || k.Email == email) {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)
	return keys, nil
}

func (s *MemoryProjectStore) BeginGeneration(_ context.Context, key model.ProjectKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[key]
	if !ok {
		return ErrNotFound
	}
	if p.InProcess {
		return ErrInProcess
	}
	p.InProcess = true
	return nil
}

func (s *MemoryProjectStore) SaveReport(_ context.Context, key model.ProjectKey, r *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[key]
	if !ok {
		return ErrNotFound
	}
	cp := *r
	p.Report = &cp
	p.InProcess = false
	p.ModificationDate = time.Now().UTC()
	return nil
}

func (s *MemoryProjectStore) EndGeneration(_ context.Context, key model.ProjectKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.projects[key]; ok {
		p.InProcess = false
	}
	return nil
}
