package state

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// setupPostgresStore connects to the database named by DATABASE_URL and
// clears the runs table. Tests are skipped when no database is configured.
func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping postgres store tests")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		t.Fatalf("clear runs table: %v", err)
	}
	return store
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "run-pg-1", sampleRecord("run-pg-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := store.Load(ctx, "run-pg-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected record")
	}
	if loaded.Status != StatusPending || len(loaded.PlannedActions) != 3 {
		t.Fatalf("unexpected record %+v", loaded)
	}
	if len(loaded.ActionResults) != 1 || loaded.ActionResults[0] == nil || !loaded.ActionResults[0].Success {
		t.Fatalf("results not persisted: %+v", loaded.ActionResults)
	}
	if loaded.LastCompletedStep != 0 {
		t.Fatalf("progress not persisted: %d", loaded.LastCompletedStep)
	}

	_, found, err = store.Load(ctx, "never-seen")
	if err != nil {
		t.Fatalf("absent run must not error: %v", err)
	}
	if found {
		t.Fatal("expected absence")
	}
}

func TestPostgresStoreRejectsTerminalRegression(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	record := sampleRecord("run-pg-2")
	record.Status = StatusCompleted
	record.LastCompletedStep = 2
	record.FinalOutput = map[string]string{"status": "ok", "content_id": "song-1"}
	if err := store.Save(ctx, "run-pg-2", record); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	record.Status = StatusPending
	record.FinalOutput = nil
	if err := store.Save(ctx, "run-pg-2", record); !IsTransitionError(err) {
		t.Fatalf("expected TransitionError, got %v", err)
	}

	loaded, _, err := store.Load(ctx, "run-pg-2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != StatusCompleted {
		t.Fatalf("terminal record mutated to %s", loaded.Status)
	}
}

func TestPostgresStoreDelete(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "run-pg-3", sampleRecord("run-pg-3")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "run-pg-3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "run-pg-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
