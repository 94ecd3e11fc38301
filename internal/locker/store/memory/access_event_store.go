package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/locker/types"
)

// AccessEventStore is an in-memory append-only log of access decisions.
// It is intended for use in tests and dev environments.
type AccessEventStore struct {
	mu     sync.Mutex
	events []types.AccessLogEntry
}

func NewAccessEventStore() *AccessEventStore {
	return &AccessEventStore{}
}

func (s *AccessEventStore) RecordEvent(_ context.Context, entry types.AccessLogEntry) error {
	if entry.Confidence != nil {
		c := *entry.Confidence
		entry.Confidence = &c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, entry)
	return nil
}

func (s *AccessEventStore) ListEvents(_ context.Context, q store.AccessEventQuery) ([]types.AccessLogEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = store.DefaultEventLimit
	}

	s.mu.Lock()
	var out []types.AccessLogEntry
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if q.IdentityID != "" && e.IdentityID != q.IdentityID {
			continue
		}
		if q.LockerNumber != 0 && e.LockerNumber != q.LockerNumber {
			continue
		}
		out = append(out, e)
	}
	s.mu.Unlock()

	// Reverse insertion order already breaks timestamp ties latest-first;
	// the stable sort only fixes entries appended out of clock order.
	slices.SortStableFunc(out, func(a, b types.AccessLogEntry) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns a copy of all recorded events in insertion order.
// Test-only helper.
func (s *AccessEventStore) Events() []types.AccessLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AccessLogEntry, len(s.events))
	copy(out, s.events)
	return out
}
