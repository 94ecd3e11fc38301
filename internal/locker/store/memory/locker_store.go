package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/facelocker/server/internal/locker/store"
)

type LockerStore struct {
	mu      sync.RWMutex
	lockers map[int]store.LockerRecord
}

func NewLockerStore() *LockerStore {
	return &LockerStore{lockers: make(map[int]store.LockerRecord)}
}

func (s *LockerStore) SaveLocker(_ context.Context, rec store.LockerRecord) error {
	if rec.LastAccessed != nil {
		t := *rec.LastAccessed
		rec.LastAccessed = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.lockers[rec.Number]; ok && cur.Version >= rec.Version {
		return nil
	}
	s.lockers[rec.Number] = rec
	return nil
}

func (s *LockerStore) LoadLockers(_ context.Context) ([]store.LockerRecord, error) {
	s.mu.RLock()
	out := make([]store.LockerRecord, 0, len(s.lockers))
	for _, rec := range s.lockers {
		if rec.LastAccessed != nil {
			t := *rec.LastAccessed
			rec.LastAccessed = &t
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b store.LockerRecord) int { return a.Number - b.Number })
	return out, nil
}
