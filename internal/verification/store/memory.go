package store

import (
	"context"
	"sync"

	"trustscore/internal/verification/models"
	id "trustscore/pkg/domain"
	"trustscore/pkg/platform/sentinel"
)

// InMemory keeps records in process. Each subject has its own lock, so
// updates to one subject never wait on another.
type InMemory struct {
	mu      sync.RWMutex
	entries map[id.SubjectID]*entry
}

type entry struct {
	mu     sync.RWMutex
	record *models.Record // nil until the first update commits
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[id.SubjectID]*entry)}
}

func (s *InMemory) FindBySubject(_ context.Context, subjectID id.SubjectID) (*models.Record, error) {
	s.mu.RLock()
	e, ok := s.entries[subjectID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.record == nil {
		return nil, sentinel.ErrNotFound
	}
	return e.record.Clone(), nil
}

// FindMany returns the records that exist; missing subjects are absent from the map.
func (s *InMemory) FindMany(ctx context.Context, subjectIDs []id.SubjectID) (map[id.SubjectID]*models.Record, error) {
	out := make(map[id.SubjectID]*models.Record, len(subjectIDs))
	for _, sid := range subjectIDs {
		record, err := s.FindBySubject(ctx, sid)
		if err != nil {
			continue
		}
		out[sid] = record
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, subjectID id.SubjectID, mutate models.Mutation) (*models.Record, error) {
	e := s.entryFor(subjectID)

	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := mutate(e.record.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return e.record.Clone(), nil
	}
	e.record = next.Clone()
	return next.Clone(), nil
}

func (s *InMemory) entryFor(subjectID id.SubjectID) *entry {
	s.mu.RLock()
	e, ok := s.entries[subjectID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[subjectID]; ok {
		return e
	}
	e = &entry{}
	s.entries[subjectID] = e
	return e
}
