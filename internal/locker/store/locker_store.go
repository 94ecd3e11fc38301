package store

import (
	"context"

	"github.com/facelocker/server/internal/locker/types"
)

type LockerRecord struct {
	types.Locker
	Version int64
}

type LockerStore interface {
	// SaveLocker writes rec unless the stored version is >= rec.Version.
	SaveLocker(ctx context.Context, rec LockerRecord) error
	// LoadLockers returns all lockers ordered by number.
	LoadLockers(ctx context.Context) ([]LockerRecord, error)
}
