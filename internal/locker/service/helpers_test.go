package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/facelocker/server/internal/biometric"
	"github.com/facelocker/server/internal/locker/service"
	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/locker/store/memory"
	"github.com/facelocker/server/internal/locker/types"
	"github.com/facelocker/server/internal/logging"
)

const testDims = 3

func vec(vals ...float64) biometric.FeatureVector {
	return biometric.FeatureVector(vals)
}

type testEnv struct {
	ctl        *service.AccessController
	identities *service.IdentityRegistry
	lockers    *service.LockerRegistry
	events     *memory.AccessEventStore
}

// newTestEnv builds a controller backed by in-memory stores with lockers
// 1..numLockers provisioned.
func newTestEnv(t *testing.T, numLockers int, policy service.AccessPolicy) testEnv {
	t.Helper()
	ids := service.NewIdentityRegistry(memory.NewIdentityStore(), testDims)
	lockers := service.NewLockerRegistry(memory.NewLockerStore())
	nums := make([]int, numLockers)
	for i := range nums {
		nums[i] = i + 1
	}
	if err := lockers.Provision(context.Background(), nums...); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	es := memory.NewAccessEventStore()
	if policy.Tolerance == 0 {
		policy.Tolerance = biometric.DefaultTolerance
	}
	ctl := service.NewAccessController(ids, lockers, es, policy, logging.Discard())
	return testEnv{ctl: ctl, identities: ids, lockers: lockers, events: es}
}

func (e testEnv) enroll(t *testing.T, id string, v biometric.FeatureVector) {
	t.Helper()
	if _, err := e.ctl.Enroll(context.Background(), id, v, ""); err != nil {
		t.Fatalf("Enroll(%s): %v", id, err)
	}
}

func (e testEnv) authorize(locker int, id string, v biometric.FeatureVector, action types.Action) (types.ActionOutcome, error) {
	return e.ctl.AuthorizeAction(context.Background(), types.ActionRequest{
		LockerNumber: locker,
		IdentityID:   id,
		Vector:       v,
		Action:       action,
		Tolerance:    -1,
	})
}

var errStoreDown = errors.New("store down")

type failingEventStore struct{}

func (failingEventStore) RecordEvent(context.Context, types.AccessLogEntry) error {
	return errStoreDown
}

func (failingEventStore) ListEvents(context.Context, store.AccessEventQuery) ([]types.AccessLogEntry, error) {
	return nil, errStoreDown
}

type failingLockerStore struct{ *memory.LockerStore }

func (*failingLockerStore) SaveLocker(context.Context, store.LockerRecord) error {
	return errStoreDown
}

type failingIdentityStore struct{ *memory.IdentityStore }

func (*failingIdentityStore) SaveIdentity(context.Context, store.IdentityRecord) error {
	return errStoreDown
}
