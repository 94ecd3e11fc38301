package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/facelocker/server/internal/db"
	"github.com/facelocker/server/internal/locker/store"
)

type LockerStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLockerStore(db *sql.DB, writer *dbpkg.Worker) *LockerStore {
	return &LockerStore{db: db, writer: writer}
}

func (s *LockerStore) SaveLocker(ctx context.Context, rec store.LockerRecord) error {
	nowMs := time.Now().UTC().UnixMilli()

	var occupant any
	if rec.Occupied && rec.Occupant != "" {
		occupant = rec.Occupant
	}

	var lastAccessedMs any
	if rec.LastAccessed != nil {
		lastAccessedMs = rec.LastAccessed.UTC().UnixMilli()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO lockers(
  locker_number, occupied, locked, occupant_id,
  last_accessed_at_ms, version, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(locker_number) DO UPDATE SET
  occupied            = excluded.occupied,
  locked              = excluded.locked,
  occupant_id         = excluded.occupant_id,
  last_accessed_at_ms = excluded.last_accessed_at_ms,
  version             = excluded.version,
  updated_at_ms       = excluded.updated_at_ms
WHERE excluded.version > lockers.version;
`,
			rec.Number, boolInt(rec.Occupied), boolInt(rec.Locked), occupant,
			lastAccessedMs, rec.Version, nowMs, nowMs,
		); err != nil {
			return fmt.Errorf("SaveLocker upsert %d: %w", rec.Number, err)
		}
		return nil
	})
}

func (s *LockerStore) LoadLockers(ctx context.Context) ([]store.LockerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT locker_number, occupied, locked, occupant_id,
       last_accessed_at_ms, version
FROM lockers
ORDER BY locker_number;
`)
	if err != nil {
		return nil, fmt.Errorf("LoadLockers query: %w", err)
	}
	defer rows.Close()

	var out []store.LockerRecord
	for rows.Next() {
		var (
			rec            store.LockerRecord
			occupied       int
			locked         int
			occupant       sql.NullString
			lastAccessedMs sql.NullInt64
		)
		if err := rows.Scan(
			&rec.Number, &occupied, &locked, &occupant,
			&lastAccessedMs, &rec.Version,
		); err != nil {
			return nil, fmt.Errorf("LoadLockers scan: %w", err)
		}
		rec.Occupied = occupied == 1
		rec.Locked = locked == 1
		rec.Occupant = occupant.String
		if lastAccessedMs.Valid {
			t := time.UnixMilli(lastAccessedMs.Int64).UTC()
			rec.LastAccessed = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadLockers rows: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
