package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/facelocker/server/internal/locker/store"
	sqlitestore "github.com/facelocker/server/internal/locker/store/sqlite"
	"github.com/facelocker/server/internal/locker/types"
)

func intPtr(v int) *int { return &v }

func entry(id, identity string, locker int, action types.Action, success bool, at time.Time) types.AccessLogEntry {
	reason := types.ReasonGranted
	if !success {
		reason = types.ReasonFaceMismatch
	}
	return types.AccessLogEntry{
		ID:           id,
		IdentityID:   identity,
		LockerNumber: locker,
		Action:       action,
		Success:      success,
		Reason:       reason,
		Confidence:   intPtr(80),
		OccurredAt:   at,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// RecordEvent: column values
// ═══════════════════════════════════════════════════════════════════════════

func TestAccessEventStore_RecordEvent_ColumnsCorrect(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAccessEventStore(conn, w)

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	err := as.RecordEvent(context.Background(), entry("e-1", "owner", 5, types.ActionUnlock, true, now))
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	var (
		identity   sql.NullString
		locker     int
		action     string
		success    int
		reason     string
		confidence sql.NullInt64
		occurredMs int64
	)
	err = conn.QueryRowContext(context.Background(), `
SELECT identity_id, locker_number, action, success, reason, confidence, occurred_at_ms
FROM access_events WHERE entry_id = ?`, "e-1",
	).Scan(&identity, &locker, &action, &success, &reason, &confidence, &occurredMs)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if identity.String != "owner" || locker != 5 || action != "unlock" {
		t.Errorf("unexpected row: identity=%v locker=%d action=%s", identity, locker, action)
	}
	if success != 1 || reason != types.ReasonGranted {
		t.Errorf("expected success=1 reason=granted, got %d %q", success, reason)
	}
	if !confidence.Valid || confidence.Int64 != 80 {
		t.Errorf("expected confidence=80, got %v", confidence)
	}
	if occurredMs != now.UnixMilli() {
		t.Errorf("expected occurred_at_ms=%d, got %d", now.UnixMilli(), occurredMs)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// RecordEvent: nullable fields
// ═══════════════════════════════════════════════════════════════════════════

func TestAccessEventStore_RecordEvent_NullOptionalFields(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAccessEventStore(conn, w)

	e := entry("e-1", "", 3, types.ActionOccupy, false, time.Now().UTC())
	e.Confidence = nil
	if err := as.RecordEvent(context.Background(), e); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	got, err := as.ListEvents(context.Background(), store.AccessEventQuery{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].IdentityID != "" {
		t.Errorf("expected empty identity, got %q", got[0].IdentityID)
	}
	if got[0].Confidence != nil {
		t.Errorf("expected nil confidence, got %d", *got[0].Confidence)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Append-only enforcement
// ═══════════════════════════════════════════════════════════════════════════

func TestAccessEventStore_RowsCannotBeMutated(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAccessEventStore(conn, w)
	ctx := context.Background()

	if err := as.RecordEvent(ctx, entry("e-1", "owner", 1, types.ActionLock, true, time.Now().UTC())); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	if _, err := conn.ExecContext(ctx, `UPDATE access_events SET success = 0`); err == nil {
		t.Error("expected UPDATE to be rejected")
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM access_events`); err == nil {
		t.Error("expected DELETE to be rejected")
	}
}

func TestAccessEventStore_DuplicateEntryIDRejected(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAccessEventStore(conn, w)
	ctx := context.Background()

	e := entry("e-1", "owner", 1, types.ActionLock, true, time.Now().UTC())
	if err := as.RecordEvent(ctx, e); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if err := as.RecordEvent(ctx, e); err == nil {
		t.Error("expected duplicate entry id to fail")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ListEvents: ordering and filters
// ═══════════════════════════════════════════════════════════════════════════

func TestAccessEventStore_ListEvents_NewestFirst(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAccessEventStore(conn, w)
	ctx := context.Background()

	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	// Same timestamp for e-2 and e-3: insertion order breaks the tie.
	for i, e := range []types.AccessLogEntry{
		entry("e-1", "owner", 1, types.ActionOccupy, true, base),
		entry("e-2", "owner", 1, types.ActionUnlock, true, base.Add(time.Second)),
		entry("e-3", "owner", 1, types.ActionLock, true, base.Add(time.Second)),
	} {
		if err := as.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent %d: %v", i, err)
		}
	}

	got, err := as.ListEvents(ctx, store.AccessEventQuery{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	want := []string{"e-3", "e-2", "e-1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i].ID)
		}
	}
}

func TestAccessEventStore_ListEvents_Filters(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAccessEventStore(conn, w)
	ctx := context.Background()

	now := time.Now().UTC()
	records := []types.AccessLogEntry{
		entry("a", "owner", 1, types.ActionUnlock, true, now),
		entry("b", "guest", 1, types.ActionUnlock, false, now.Add(time.Millisecond)),
		entry("c", "owner", 2, types.ActionOccupy, true, now.Add(2*time.Millisecond)),
	}
	for _, e := range records {
		if err := as.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	byOwner, err := as.ListEvents(ctx, store.AccessEventQuery{IdentityID: "owner"})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(byOwner) != 2 || byOwner[0].ID != "c" || byOwner[1].ID != "a" {
		t.Errorf("unexpected owner events: %+v", byOwner)
	}

	byLocker, err := as.ListEvents(ctx, store.AccessEventQuery{LockerNumber: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(byLocker) != 1 || byLocker[0].ID != "b" {
		t.Errorf("unexpected locker events: %+v", byLocker)
	}
	if byLocker[0].Success {
		t.Error("expected the guest attempt to be a failure")
	}
}
