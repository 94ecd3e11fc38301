package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/facelocker/server/internal/db"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbtest_%s?mode=memory&cache=shared", t.Name())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrate_Idempotent(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	v, err := db.CurrentVersion(ctx, conn)
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if v != 1 {
		t.Errorf("expected schema version 1, got %d", v)
	}
}

func TestCurrentVersion_EmptyDatabase(t *testing.T) {
	conn := openMemory(t)
	v, err := db.CurrentVersion(context.Background(), conn)
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if v != 0 {
		t.Errorf("expected version 0, got %d", v)
	}
}

func TestOpen_CreatesFileAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "facelocker.db")
	conn, err := db.Open(context.Background(), db.Config{Path: path, Env: "dev"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM lockers`).Scan(&n); err != nil {
		t.Fatalf("lockers table missing: %v", err)
	}
}

func TestWorker_SerializesWrites(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, `CREATE TABLE counter (n INTEGER NOT NULL)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO counter(n) VALUES (0)`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := db.NewWorker(conn)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
				var n int
				if err := tx.QueryRowContext(ctx, `SELECT n FROM counter`).Scan(&n); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, `UPDATE counter SET n = ?`, n+1)
				return err
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()

	var n int
	if err := conn.QueryRowContext(ctx, `SELECT n FROM counter`).Scan(&n); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 20 {
		t.Errorf("expected 20 increments, got %d", n)
	}
}

func TestWorker_RollsBackOnError(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, `CREATE TABLE items (v TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := db.NewWorker(conn)
	defer w.Close()

	boom := errors.New("boom")
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items(v) VALUES ('x')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	_ = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	if n != 0 {
		t.Errorf("expected rollback, found %d rows", n)
	}
}

func TestWorker_DoAfterClose(t *testing.T) {
	conn := openMemory(t)
	w := db.NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	if !errors.Is(err, db.ErrWorkerClosed) {
		t.Errorf("expected ErrWorkerClosed, got %v", err)
	}
}
