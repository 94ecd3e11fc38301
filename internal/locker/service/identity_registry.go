package service

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facelocker/server/internal/biometric"
	"github.com/facelocker/server/internal/keylock"
	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/locker/types"
)

type identityEntry struct {
	identity types.Identity
	position int64
}

// IdentityRegistry owns the enrolled identities. The in-memory index is
// authoritative for matching; every mutation is then written to the store
// outside of any lock, tagged with a version so late writes cannot
// overwrite newer state.
type IdentityRegistry struct {
	store store.IdentityStore
	dims  int
	locks keylock.Map[string]

	mu   sync.RWMutex
	byID map[string]identityEntry

	version  atomic.Int64
	position atomic.Int64
}

// NewIdentityRegistry builds an empty registry for vectors of dims
// components. Call Load to restore previously persisted identities.
func NewIdentityRegistry(st store.IdentityStore, dims int) *IdentityRegistry {
	if dims <= 0 {
		dims = biometric.DefaultDimensions
	}
	return &IdentityRegistry{
		store: st,
		dims:  dims,
		byID:  make(map[string]identityEntry),
	}
}

// Dimensions reports the vector length every enrollment must have.
func (r *IdentityRegistry) Dimensions() int { return r.dims }

// Load replaces the in-memory index with the store's contents.
func (r *IdentityRegistry) Load(ctx context.Context) error {
	recs, err := r.store.LoadIdentities(ctx)
	if err != nil {
		return fmt.Errorf("%w: load identities: %v", ErrInternalStore, err)
	}

	byID := make(map[string]identityEntry, len(recs))
	var maxVersion, maxPosition int64
	for _, rec := range recs {
		maxVersion = max(maxVersion, rec.Version)
		maxPosition = max(maxPosition, rec.Position)
		if rec.Removed || len(rec.Vector) == 0 {
			continue
		}
		if err := rec.Vector.Validate(r.dims); err != nil {
			return fmt.Errorf("load identity %s: %w", rec.ID, err)
		}
		byID[rec.ID] = identityEntry{
			identity: types.Identity{
				ID:         rec.ID,
				Vector:     rec.Vector.Clone(),
				ImageRef:   rec.ImageRef,
				EnrolledAt: rec.EnrolledAt,
			},
			position: rec.Position,
		}
	}

	r.mu.Lock()
	r.byID = byID
	r.mu.Unlock()
	r.version.Store(maxVersion)
	r.position.Store(maxPosition)
	return nil
}

// Enroll stores vector as the single active vector of id, replacing any
// previous enrollment. A re-enrolled identity keeps its iteration position.
func (r *IdentityRegistry) Enroll(ctx context.Context, id string, vector biometric.FeatureVector, imageRef string) (types.Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.Identity{}, ErrInvalidIdentityID
	}
	if err := vector.Validate(r.dims); err != nil {
		return types.Identity{}, err
	}

	ident := types.Identity{
		ID:         id,
		Vector:     vector.Clone(),
		ImageRef:   strings.TrimSpace(imageRef),
		EnrolledAt: time.Now().UTC(),
	}

	unlock := r.locks.Lock(id)
	r.mu.RLock()
	prev, existed := r.byID[id]
	r.mu.RUnlock()

	pos := prev.position
	if !existed {
		pos = r.position.Add(1)
	}
	rec := store.IdentityRecord{
		ID:         id,
		Vector:     ident.Vector,
		ImageRef:   ident.ImageRef,
		EnrolledAt: ident.EnrolledAt,
		Position:   pos,
		Version:    r.version.Add(1),
	}

	r.mu.Lock()
	r.byID[id] = identityEntry{identity: ident, position: pos}
	r.mu.Unlock()
	unlock()

	// The index already changed; a cancelled request must not skip the write.
	if err := r.store.SaveIdentity(context.WithoutCancel(ctx), rec); err != nil {
		return cloneIdentity(ident), fmt.Errorf("%w: save identity %s: %v", ErrInternalStore, id, err)
	}
	return cloneIdentity(ident), nil
}

// Get returns a copy of the enrolled identity.
func (r *IdentityRegistry) Get(id string) (types.Identity, bool) {
	r.mu.RLock()
	e, ok := r.byID[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return types.Identity{}, false
	}
	return cloneIdentity(e.identity), true
}

// Remove unregisters id. It fails with ErrNotEnrolled when id is absent.
func (r *IdentityRegistry) Remove(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidIdentityID
	}

	unlock := r.locks.Lock(id)
	r.mu.Lock()
	prev, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	r.mu.Unlock()
	if !ok {
		unlock()
		return fmt.Errorf("%w: %s", ErrNotEnrolled, id)
	}
	rec := store.IdentityRecord{
		ID:       id,
		Position: prev.position,
		Version:  r.version.Add(1),
		Removed:  true,
	}
	unlock()

	if err := r.store.SaveIdentity(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("%w: remove identity %s: %v", ErrInternalStore, id, err)
	}
	return nil
}

// All yields every enrolled (id, vector) pair in enrollment order. The set
// is captured when All is called; later enrollments and removals are not
// observed by the returned sequence.
func (r *IdentityRegistry) All() iter.Seq2[string, biometric.FeatureVector] {
	r.mu.RLock()
	snap := make([]identityEntry, 0, len(r.byID))
	for _, e := range r.byID {
		snap = append(snap, e)
	}
	r.mu.RUnlock()

	slices.SortFunc(snap, func(a, b identityEntry) int {
		return cmp.Compare(a.position, b.position)
	})

	return func(yield func(string, biometric.FeatureVector) bool) {
		for _, e := range snap {
			// Vectors in the index are never mutated in place, so
			// sharing them with a read-only scan is safe.
			if !yield(e.identity.ID, e.identity.Vector) {
				return
			}
		}
	}
}

// Len reports the number of enrolled identities.
func (r *IdentityRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func cloneIdentity(i types.Identity) types.Identity {
	i.Vector = i.Vector.Clone()
	return i
}
