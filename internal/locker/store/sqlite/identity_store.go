package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/facelocker/server/internal/biometric"
	dbpkg "github.com/facelocker/server/internal/db"
	"github.com/facelocker/server/internal/locker/store"
)

type IdentityStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewIdentityStore(db *sql.DB, writer *dbpkg.Worker) *IdentityStore {
	return &IdentityStore{db: db, writer: writer}
}

// SaveIdentity upserts rec. The WHERE clause on the conflict branch drops
// writes that arrive after a newer version has already been stored.
func (s *IdentityStore) SaveIdentity(ctx context.Context, rec store.IdentityRecord) error {
	nowMs := time.Now().UTC().UnixMilli()

	var (
		encoding   any
		enrolledMs any
		removedMs  any
		imageRef   any
	)
	if rec.Removed {
		removedMs = nowMs
	} else {
		b, err := rec.Vector.MarshalBinary()
		if err != nil {
			return fmt.Errorf("SaveIdentity encode %s: %w", rec.ID, err)
		}
		encoding = b
		if !rec.EnrolledAt.IsZero() {
			enrolledMs = rec.EnrolledAt.UTC().UnixMilli()
		}
		if rec.ImageRef != "" {
			imageRef = rec.ImageRef
		}
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO identities(
  identity_id, encoding, image_ref, enrolled_at_ms,
  position, version, removed_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(identity_id) DO UPDATE SET
  encoding       = excluded.encoding,
  image_ref      = excluded.image_ref,
  enrolled_at_ms = excluded.enrolled_at_ms,
  position       = excluded.position,
  version        = excluded.version,
  removed_at_ms  = excluded.removed_at_ms,
  updated_at_ms  = excluded.updated_at_ms
WHERE excluded.version > identities.version;
`,
			rec.ID, encoding, imageRef, enrolledMs,
			rec.Position, rec.Version, removedMs, nowMs,
		); err != nil {
			return fmt.Errorf("SaveIdentity upsert %s: %w", rec.ID, err)
		}
		return nil
	})
}

func (s *IdentityStore) LoadIdentities(ctx context.Context) ([]store.IdentityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT identity_id, encoding, image_ref, enrolled_at_ms,
       position, version, removed_at_ms
FROM identities
ORDER BY position, version;
`)
	if err != nil {
		return nil, fmt.Errorf("LoadIdentities query: %w", err)
	}
	defer rows.Close()

	var out []store.IdentityRecord
	for rows.Next() {
		var (
			rec        store.IdentityRecord
			encoding   []byte
			imageRef   sql.NullString
			enrolledMs sql.NullInt64
			removedMs  sql.NullInt64
		)
		if err := rows.Scan(
			&rec.ID, &encoding, &imageRef, &enrolledMs,
			&rec.Position, &rec.Version, &removedMs,
		); err != nil {
			return nil, fmt.Errorf("LoadIdentities scan: %w", err)
		}

		rec.Removed = removedMs.Valid
		rec.ImageRef = imageRef.String
		if enrolledMs.Valid {
			rec.EnrolledAt = time.UnixMilli(enrolledMs.Int64).UTC()
		}
		if !rec.Removed {
			v, err := biometric.DecodeVector(encoding)
			if err != nil {
				return nil, fmt.Errorf("LoadIdentities decode %s: %w", rec.ID, err)
			}
			rec.Vector = v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadIdentities rows: %w", err)
	}
	return out, nil
}
