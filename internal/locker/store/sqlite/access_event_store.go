package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/facelocker/server/internal/db"
	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/locker/types"
)

type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

func (s *AccessEventStore) RecordEvent(ctx context.Context, e types.AccessLogEntry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	var identityID any
	if id := strings.TrimSpace(e.IdentityID); id != "" {
		identityID = id
	}

	var confidence any
	if e.Confidence != nil {
		confidence = *e.Confidence
	}

	var success int
	if e.Success {
		success = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  entry_id, identity_id, locker_number, action,
  success, reason, confidence, occurred_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			e.ID, identityID, e.LockerNumber, string(e.Action),
			success, e.Reason, confidence, e.OccurredAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

func (s *AccessEventStore) ListEvents(ctx context.Context, q store.AccessEventQuery) ([]types.AccessLogEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = store.DefaultEventLimit
	}

	var (
		where []string
		args  []any
	)
	if q.IdentityID != "" {
		where = append(where, "identity_id = ?")
		args = append(args, q.IdentityID)
	}
	if q.LockerNumber != 0 {
		where = append(where, "locker_number = ?")
		args = append(args, q.LockerNumber)
	}

	query := `
SELECT entry_id, identity_id, locker_number, action,
       success, reason, confidence, occurred_at_ms
FROM access_events`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY occurred_at_ms DESC, event_seq DESC\nLIMIT ?;"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListEvents query: %w", err)
	}
	defer rows.Close()

	var out []types.AccessLogEntry
	for rows.Next() {
		var (
			e          types.AccessLogEntry
			identityID sql.NullString
			action     string
			success    int
			confidence sql.NullInt64
			occurredMs int64
		)
		if err := rows.Scan(
			&e.ID, &identityID, &e.LockerNumber, &action,
			&success, &e.Reason, &confidence, &occurredMs,
		); err != nil {
			return nil, fmt.Errorf("ListEvents scan: %w", err)
		}
		e.IdentityID = identityID.String
		e.Action = types.Action(action)
		e.Success = success == 1
		if confidence.Valid {
			c := int(confidence.Int64)
			e.Confidence = &c
		}
		e.OccurredAt = time.UnixMilli(occurredMs).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEvents rows: %w", err)
	}
	return out, nil
}
