package store

import (
	"context"

	"github.com/facelocker/server/internal/locker/types"
)

// DefaultEventLimit caps ListEvents when the query does not set a limit.
const DefaultEventLimit = 50

// AccessEventQuery filters ListEvents. Zero values mean "any".
type AccessEventQuery struct {
	IdentityID   string
	LockerNumber int
	Limit        int
}

// AccessEventStore persists access decisions as an append-only audit log.
// RecordEvent must be safe for concurrent callers without lost entries.
type AccessEventStore interface {
	RecordEvent(ctx context.Context, entry types.AccessLogEntry) error
	// ListEvents returns matching entries newest first. Entries with the
	// same timestamp are ordered by insertion, latest first.
	ListEvents(ctx context.Context, q AccessEventQuery) ([]types.AccessLogEntry, error)
}
