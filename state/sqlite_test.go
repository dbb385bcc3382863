package state

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mveselov-dev/songsmith/planner"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(context.Background(), db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func sampleRecord(runID string) RunRecord {
	plan := []planner.Action{
		{Kind: planner.KindNavigate, Value: "/create", Expect: "create page open"},
		{Kind: planner.KindInput, Target: "lyrics-input", Value: "la la", Expect: "lyrics set"},
		{Kind: planner.KindClick, Target: "create-button", Expect: "generation started"},
	}
	record := NewRunRecord(runID, plan, time.Now())
	record.SetResult(0, planner.ActionResult{Success: true})
	record.LastCompletedStep = 0
	return record
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "run-1", sampleRecord("run-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := store.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected record")
	}
	if loaded.RunID != "run-1" || loaded.Status != StatusPending {
		t.Fatalf("unexpected record %+v", loaded)
	}
	if len(loaded.PlannedActions) != 3 {
		t.Fatalf("plan not persisted: %+v", loaded.PlannedActions)
	}
	if loaded.PlannedActions[1].Value != "la la" {
		t.Fatalf("action content lost: %+v", loaded.PlannedActions[1])
	}
	if len(loaded.ActionResults) != 1 || loaded.ActionResults[0] == nil || !loaded.ActionResults[0].Success {
		t.Fatalf("results not persisted: %+v", loaded.ActionResults)
	}
	if loaded.LastCompletedStep != 0 {
		t.Fatalf("progress not persisted: %d", loaded.LastCompletedStep)
	}
	if loaded.UpdatedAt.IsZero() || loaded.CreatedAt.IsZero() {
		t.Fatal("timestamps not stamped")
	}
}

func TestSQLiteStoreLoadAbsentRun(t *testing.T) {
	store := setupSQLiteStore(t)

	_, found, err := store.Load(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("absent run must not error: %v", err)
	}
	if found {
		t.Fatal("expected absence")
	}
}

func TestSQLiteStoreOverwriteKeepsCreatedAt(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	record := sampleRecord("run-2")
	if err := store.Save(ctx, "run-2", record); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, _, err := store.Load(ctx, "run-2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	first.LastCompletedStep = 1
	first.SetResult(1, planner.ActionResult{Success: true})
	if err := store.Save(ctx, "run-2", first); err != nil {
		t.Fatalf("second save: %v", err)
	}

	second, _, err := store.Load(ctx, "run-2")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed on overwrite: %v vs %v", second.CreatedAt, first.CreatedAt)
	}
	if second.LastCompletedStep != 1 {
		t.Fatalf("progress lost: %d", second.LastCompletedStep)
	}
}

func TestSQLiteStoreRejectsTerminalRegression(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	record := sampleRecord("run-3")
	record.Status = StatusCompleted
	record.LastCompletedStep = 2
	record.FinalOutput = map[string]string{"status": "ok", "content_id": "song-1"}
	if err := store.Save(ctx, "run-3", record); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	record.Status = StatusPending
	record.FinalOutput = nil
	err := store.Save(ctx, "run-3", record)
	if err == nil {
		t.Fatal("expected rejection of terminal regression")
	}
	if !IsTransitionError(err) {
		t.Fatalf("expected TransitionError, got %v", err)
	}

	loaded, _, err := store.Load(ctx, "run-3")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != StatusCompleted {
		t.Fatalf("terminal record mutated to %s", loaded.Status)
	}
}

func TestSQLiteStoreCorruptRecord(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	store, err := NewSQLiteStore(context.Background(), db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "run-4", sampleRecord("run-4")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE runs SET planned_actions = '{broken' WHERE id = ?`, "run-4"); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	_, _, err = store.Load(ctx, "run-4")
	if !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "run-5", sampleRecord("run-5")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "run-5"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, found, err := store.Load(ctx, "run-5")
	if err != nil || found {
		t.Fatalf("record should be gone, found=%v err=%v", found, err)
	}
	if err := store.Delete(ctx, "run-5"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreMatchesContract(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	_, found, err := store.Load(ctx, "run-6")
	if err != nil || found {
		t.Fatalf("absent run: found=%v err=%v", found, err)
	}

	if err := store.Save(ctx, "run-6", sampleRecord("run-6")); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, found, err := store.Load(ctx, "run-6")
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if loaded.PlannedActions[0].Value != "/create" {
		t.Fatalf("unexpected plan %+v", loaded.PlannedActions)
	}

	terminal := loaded
	terminal.Status = StatusFailed
	terminal.Error = "exhausted"
	if err := store.Save(ctx, "run-6", terminal); err != nil {
		t.Fatalf("save terminal: %v", err)
	}
	regressed := terminal
	regressed.Status = StatusPending
	regressed.Error = ""
	if err := store.Save(ctx, "run-6", regressed); !IsTransitionError(err) {
		t.Fatalf("expected TransitionError, got %v", err)
	}

	store.Corrupt("run-6")
	if _, _, err := store.Load(ctx, "run-6"); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}
