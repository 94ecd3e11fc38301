package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/facelocker/server/internal/locker/store"
)

type IdentityStore struct {
	mu      sync.RWMutex
	records map[string]store.IdentityRecord
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{records: make(map[string]store.IdentityRecord)}
}

func (s *IdentityStore) SaveIdentity(_ context.Context, rec store.IdentityRecord) error {
	rec.Vector = rec.Vector.Clone()
	if rec.Removed {
		rec.Vector = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.records[rec.ID]; ok && cur.Version >= rec.Version {
		return nil
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *IdentityStore) LoadIdentities(_ context.Context) ([]store.IdentityRecord, error) {
	s.mu.RLock()
	out := make([]store.IdentityRecord, 0, len(s.records))
	for _, rec := range s.records {
		rec.Vector = rec.Vector.Clone()
		out = append(out, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b store.IdentityRecord) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.Version, b.Version)
	})
	return out, nil
}
