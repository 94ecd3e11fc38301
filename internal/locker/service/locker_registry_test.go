package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/facelocker/server/internal/locker/service"
	"github.com/facelocker/server/internal/locker/store/memory"
)

func newLockers(t *testing.T, nums ...int) *service.LockerRegistry {
	t.Helper()
	r := service.NewLockerRegistry(memory.NewLockerStore())
	if err := r.Provision(context.Background(), nums...); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return r
}

func TestProvision_InitialState(t *testing.T) {
	r := newLockers(t, 3, 1, 2)
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 lockers, got %d", len(list))
	}
	for i, l := range list {
		if l.Number != i+1 {
			t.Errorf("expected locker %d at index %d, got %d", i+1, i, l.Number)
		}
		if !l.Locked || l.Occupied || l.Occupant != "" || l.LastAccessed != nil {
			t.Errorf("unexpected initial state %+v", l)
		}
	}
}

func TestProvision_RejectsNonPositive(t *testing.T) {
	r := service.NewLockerRegistry(memory.NewLockerStore())
	if err := r.Provision(context.Background(), 0); !errors.Is(err, service.ErrInvalidLockerNumber) {
		t.Fatalf("expected ErrInvalidLockerNumber, got %v", err)
	}
}

func TestProvision_KeepsExistingState(t *testing.T) {
	ctx := context.Background()
	r := newLockers(t, 1)
	if _, err := r.Occupy(ctx, 1, "alice"); err != nil {
		t.Fatalf("Occupy: %v", err)
	}
	if err := r.Provision(ctx, 1, 2); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	l, _ := r.Get(1)
	if l.Occupant != "alice" {
		t.Error("re-provisioning must not reset a locker")
	}
}

// ── Occupancy ────────────────────────────────────────────────────────────────

func TestOccupy_Twice(t *testing.T) {
	ctx := context.Background()
	r := newLockers(t, 1)
	l, err := r.Occupy(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("Occupy: %v", err)
	}
	if !l.Occupied || l.Occupant != "alice" || !l.Locked || l.LastAccessed == nil {
		t.Errorf("unexpected state %+v", l)
	}

	before, _ := r.Get(1)
	_, err = r.Occupy(ctx, 1, "bob")
	if !errors.Is(err, service.ErrAlreadyOccupied) {
		t.Fatalf("expected ErrAlreadyOccupied, got %v", err)
	}
	after, _ := r.Get(1)
	if after.Occupant != "alice" || !after.LastAccessed.Equal(*before.LastAccessed) {
		t.Error("refused transition must leave state unchanged")
	}
}

func TestRelease_ByNonOccupant(t *testing.T) {
	ctx := context.Background()
	r := newLockers(t, 1)
	_, _ = r.Occupy(ctx, 1, "alice")

	_, err := r.Release(ctx, 1, "bob")
	if !errors.Is(err, service.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	l, _ := r.Get(1)
	if !l.Occupied || l.Occupant != "alice" {
		t.Errorf("state changed after refused release: %+v", l)
	}
}

func TestRelease_NotOccupied(t *testing.T) {
	r := newLockers(t, 1)
	if _, err := r.Release(context.Background(), 1, "alice"); !errors.Is(err, service.ErrNotOccupied) {
		t.Fatalf("expected ErrNotOccupied, got %v", err)
	}
}

func TestRelease_AlwaysRelocks(t *testing.T) {
	ctx := context.Background()
	r := newLockers(t, 1)
	_, _ = r.Occupy(ctx, 1, "alice")
	if _, err := r.Unlock(ctx, 1, "alice"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	l, err := r.Release(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !l.Locked || l.Occupied || l.Occupant != "" {
		t.Errorf("expected locked and empty, got %+v", l)
	}
}

// ── Lock state ───────────────────────────────────────────────────────────────

func TestUnlockLock_Cycle(t *testing.T) {
	ctx := context.Background()
	r := newLockers(t, 1)

	if _, err := r.Lock(ctx, 1, "alice"); !errors.Is(err, service.ErrAlreadyLocked) {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}
	l, err := r.Unlock(ctx, 1, "alice")
	if err != nil || l.Locked {
		t.Fatalf("Unlock: %+v %v", l, err)
	}
	if _, err := r.Unlock(ctx, 1, "alice"); !errors.Is(err, service.ErrAlreadyUnlocked) {
		t.Fatalf("expected ErrAlreadyUnlocked, got %v", err)
	}
	l, err = r.Lock(ctx, 1, "bob")
	if err != nil || !l.Locked {
		t.Fatalf("unoccupied locker should lock for anyone: %+v %v", l, err)
	}
}

func TestUnlock_OnlyOccupant(t *testing.T) {
	ctx := context.Background()
	r := newLockers(t, 1)
	_, _ = r.Occupy(ctx, 1, "alice")

	if _, err := r.Unlock(ctx, 1, "bob"); !errors.Is(err, service.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := r.Unlock(ctx, 1, "alice"); err != nil {
		t.Fatalf("occupant Unlock: %v", err)
	}
	if _, err := r.Lock(ctx, 1, "bob"); !errors.Is(err, service.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestTransition_UnknownLocker(t *testing.T) {
	r := newLockers(t, 1)
	if _, err := r.Unlock(context.Background(), 99, "alice"); !errors.Is(err, service.ErrLockerNotFound) {
		t.Fatalf("expected ErrLockerNotFound, got %v", err)
	}
}

// ── Concurrency ──────────────────────────────────────────────────────────────

func TestOccupy_ConcurrentExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	r := newLockers(t, 7)

	const callers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		occupied int
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := string(rune('a' + i%26))
			_, err := r.Occupy(ctx, 7, actor+"-caller")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, service.ErrAlreadyOccupied):
				occupied++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if won != 1 || occupied != callers-1 {
		t.Fatalf("expected 1 winner and %d refusals, got %d and %d", callers-1, won, occupied)
	}
}

// ── Persistence ──────────────────────────────────────────────────────────────

func TestLoad_RestoresState(t *testing.T) {
	ctx := context.Background()
	st := memory.NewLockerStore()
	r := service.NewLockerRegistry(st)
	_ = r.Provision(ctx, 1, 2)
	_, _ = r.Occupy(ctx, 2, "alice")
	_, _ = r.Unlock(ctx, 2, "alice")

	restored := service.NewLockerRegistry(st)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	l, ok := restored.Get(2)
	if !ok || !l.Occupied || l.Occupant != "alice" || l.Locked {
		t.Fatalf("unexpected restored locker %+v", l)
	}

	// The restored version counter continues, so the next write persists.
	if _, err := restored.Lock(ctx, 2, "alice"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	again := service.NewLockerRegistry(st)
	_ = again.Load(ctx)
	if l, _ := again.Get(2); !l.Locked {
		t.Error("expected persisted lock")
	}
}

func TestTransition_StoreFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	r := service.NewLockerRegistry(&failingLockerStore{memory.NewLockerStore()})
	if err := r.Provision(ctx, 1); !errors.Is(err, service.ErrInternalStore) {
		t.Fatalf("expected ErrInternalStore from Provision, got %v", err)
	}

	l, err := r.Unlock(ctx, 1, "alice")
	if !errors.Is(err, service.ErrInternalStore) {
		t.Fatalf("expected ErrInternalStore, got %v", err)
	}
	if l.Locked {
		t.Error("returned state should reflect the applied transition")
	}
	if got, _ := r.Get(1); got.Locked {
		t.Error("in-memory state is authoritative")
	}
}
