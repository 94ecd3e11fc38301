package store

import (
	"context"
	"time"

	"github.com/facelocker/server/internal/biometric"
)

// IdentityRecord is the persisted form of an identity. Removed records are
// kept as tombstones so a late write of an older version cannot resurrect
// an unregistered identity.
type IdentityRecord struct {
	ID         string
	Vector     biometric.FeatureVector
	ImageRef   string
	EnrolledAt time.Time
	Position   int64 // iteration order, assigned on first enrollment
	Version    int64 // strictly increasing across all identity writes
	Removed    bool
}

type IdentityStore interface {
	// SaveIdentity writes rec unless the store already holds a version of
	// the same identity that is >= rec.Version.
	SaveIdentity(ctx context.Context, rec IdentityRecord) error
	// LoadIdentities returns every record, tombstones included, ordered by
	// Position.
	LoadIdentities(ctx context.Context) ([]IdentityRecord, error)
}
