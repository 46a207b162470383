package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

var testSchema = Schema{
	Name:    "test",
	SQL:     "CREATE TABLE items (id TEXT PRIMARY KEY, body TEXT NOT NULL);",
	Version: 1,
}

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(ctx, path, testSchema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.ExecRetry(ctx, "INSERT INTO items (id, body) VALUES (?, ?)", "a", "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = Open(ctx, path, testSchema)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var body string
	if err := db.QueryRowContext(ctx, "SELECT body FROM items WHERE id = ?", "a").Scan(&body); err != nil {
		t.Fatalf("select: %v", err)
	}
	if body != "hello" {
		t.Fatalf("expected persisted row, got %q", body)
	}
}

func TestOpenRejectsOtherVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(ctx, path, testSchema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = db.Close()

	bumped := testSchema
	bumped.Version = 2
	if _, err := Open(ctx, path, bumped); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("expected busy message to be detected")
	}
	if IsBusy(errors.New("no such table")) {
		t.Fatal("unexpected busy classification")
	}
	if IsBusy(nil) {
		t.Fatal("nil is not busy")
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after 3 calls, got calls=%d err=%v", calls, err)
	}

	calls = 0
	plain := errors.New("constraint failed")
	if err := RetryOnBusy(context.Background(), func() error { calls++; return plain }); !errors.Is(err, plain) || calls != 1 {
		t.Fatalf("expected single call returning the error, got calls=%d err=%v", calls, err)
	}
}
