package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/locker/types"
)

type lockerSlot struct {
	mu      sync.Mutex
	state   types.Locker
	version int64
}

// LockerRegistry holds the state machine of every provisioned locker.
// Transitions on one locker are serialized by that locker's mutex;
// different lockers never contend. The set of lockers only grows.
type LockerRegistry struct {
	store store.LockerStore

	mu    sync.RWMutex
	slots map[int]*lockerSlot
}

// NewLockerRegistry builds an empty registry. Call Load and Provision to
// populate it.
func NewLockerRegistry(st store.LockerStore) *LockerRegistry {
	return &LockerRegistry{store: st, slots: make(map[int]*lockerSlot)}
}

// Load restores locker state from the store. Lockers already provisioned in
// memory are overwritten.
func (r *LockerRegistry) Load(ctx context.Context) error {
	recs, err := r.store.LoadLockers(ctx)
	if err != nil {
		return fmt.Errorf("%w: load lockers: %v", ErrInternalStore, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		r.slots[rec.Number] = &lockerSlot{state: cloneLocker(rec.Locker), version: rec.Version}
	}
	return nil
}

// Provision adds lockers that do not exist yet in their initial state,
// locked and unoccupied. Existing lockers are left untouched.
func (r *LockerRegistry) Provision(ctx context.Context, numbers ...int) error {
	var created []store.LockerRecord

	r.mu.Lock()
	for _, n := range numbers {
		if n <= 0 {
			r.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrInvalidLockerNumber, n)
		}
		if _, ok := r.slots[n]; ok {
			continue
		}
		slot := &lockerSlot{state: types.NewLocker(n), version: 1}
		r.slots[n] = slot
		created = append(created, store.LockerRecord{Locker: slot.state, Version: slot.version})
	}
	r.mu.Unlock()

	for _, rec := range created {
		if err := r.store.SaveLocker(context.WithoutCancel(ctx), rec); err != nil {
			return fmt.Errorf("%w: save locker %d: %v", ErrInternalStore, rec.Number, err)
		}
	}
	return nil
}

func (r *LockerRegistry) slot(n int) (*lockerSlot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[n]
	return s, ok
}

// Get returns a copy of locker n.
func (r *LockerRegistry) Get(n int) (types.Locker, bool) {
	s, ok := r.slot(n)
	if !ok {
		return types.Locker{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLocker(s.state), true
}

// List returns every locker ordered by number.
func (r *LockerRegistry) List() []types.Locker {
	r.mu.RLock()
	nums := make([]int, 0, len(r.slots))
	for n := range r.slots {
		nums = append(nums, n)
	}
	r.mu.RUnlock()
	slices.Sort(nums)

	out := make([]types.Locker, 0, len(nums))
	for _, n := range nums {
		if l, ok := r.Get(n); ok {
			out = append(out, l)
		}
	}
	return out
}

// Len reports the number of provisioned lockers.
func (r *LockerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Occupy claims an unoccupied locker for actor. The lock state is unchanged.
func (r *LockerRegistry) Occupy(ctx context.Context, n int, actor string) (types.Locker, error) {
	return r.transition(ctx, n, actor, func(l *types.Locker) error {
		if l.Occupied {
			return ErrAlreadyOccupied
		}
		l.Occupied = true
		l.Occupant = actor
		return nil
	})
}

// Release frees a locker held by actor and locks it.
func (r *LockerRegistry) Release(ctx context.Context, n int, actor string) (types.Locker, error) {
	return r.transition(ctx, n, actor, func(l *types.Locker) error {
		if !l.Occupied {
			return ErrNotOccupied
		}
		if l.Occupant != actor {
			return ErrPermissionDenied
		}
		l.Occupied = false
		l.Occupant = ""
		l.Locked = true
		return nil
	})
}

// Unlock opens a locked locker. An occupied locker only opens for its occupant.
func (r *LockerRegistry) Unlock(ctx context.Context, n int, actor string) (types.Locker, error) {
	return r.transition(ctx, n, actor, func(l *types.Locker) error {
		if !l.Locked {
			return ErrAlreadyUnlocked
		}
		if l.Occupied && l.Occupant != actor {
			return ErrPermissionDenied
		}
		l.Locked = false
		return nil
	})
}

// Lock closes an unlocked locker. An occupied locker only locks for its occupant.
func (r *LockerRegistry) Lock(ctx context.Context, n int, actor string) (types.Locker, error) {
	return r.transition(ctx, n, actor, func(l *types.Locker) error {
		if l.Locked {
			return ErrAlreadyLocked
		}
		if l.Occupied && l.Occupant != actor {
			return ErrPermissionDenied
		}
		l.Locked = true
		return nil
	})
}

// Apply dispatches action to the matching transition.
func (r *LockerRegistry) Apply(ctx context.Context, action types.Action, n int, actor string) (types.Locker, error) {
	switch action {
	case types.ActionOccupy:
		return r.Occupy(ctx, n, actor)
	case types.ActionRelease:
		return r.Release(ctx, n, actor)
	case types.ActionUnlock:
		return r.Unlock(ctx, n, actor)
	case types.ActionLock:
		return r.Lock(ctx, n, actor)
	}
	return types.Locker{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
}

// transition runs fn against a copy of the locker under its mutex. On
// success the copy becomes the new state and is persisted after the mutex
// is released. A refused transition returns the unchanged state. When the
// transition applied but persistence failed, the new state is returned
// alongside an ErrInternalStore error.
func (r *LockerRegistry) transition(ctx context.Context, n int, actor string, fn func(*types.Locker) error) (types.Locker, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return types.Locker{}, ErrInvalidIdentityID
	}
	s, ok := r.slot(n)
	if !ok {
		return types.Locker{}, fmt.Errorf("%w: %d", ErrLockerNotFound, n)
	}

	s.mu.Lock()
	next := cloneLocker(s.state)
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return next, err
	}
	now := time.Now().UTC()
	next.LastAccessed = &now
	s.state = next
	s.version++
	rec := store.LockerRecord{Locker: cloneLocker(next), Version: s.version}
	s.mu.Unlock()

	// The transition is committed; a cancelled request must not skip the write.
	if err := r.store.SaveLocker(context.WithoutCancel(ctx), rec); err != nil {
		return next, fmt.Errorf("%w: save locker %d: %v", ErrInternalStore, n, err)
	}
	return next, nil
}

func cloneLocker(l types.Locker) types.Locker {
	if l.LastAccessed != nil {
		t := *l.LastAccessed
		l.LastAccessed = &t
	}
	return l
}
