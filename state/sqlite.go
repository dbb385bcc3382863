package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	planned_actions TEXT NOT NULL,
	action_results TEXT NOT NULL,
	last_completed_step INTEGER NOT NULL,
	retry_count INTEGER NOT NULL,
	final_output TEXT,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore persists run records in a local SQLite database. It is the
// default backend for single-host deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore prepares the store and ensures the runs table exists.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("%w: migrate runs table: %v", ErrStoreIO, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, runID string) (RunRecord, bool, error) {
	var (
		record    RunRecord
		planned   []byte
		results   []byte
		output    []byte
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, status, planned_actions, action_results, last_completed_step, retry_count, final_output, error, created_at, updated_at
FROM runs
WHERE id = ?
`, runID).Scan(
		&record.RunID,
		&record.Status,
		&planned,
		&results,
		&record.LastCompletedStep,
		&record.RetryCount,
		&output,
		&record.Error,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, fmt.Errorf("%w: load run %s: %v", ErrStoreIO, runID, err)
	}

	if record.CreatedAt, err = parseStoredTime(runID, createdAt); err != nil {
		return RunRecord{}, false, err
	}
	if record.UpdatedAt, err = parseStoredTime(runID, updatedAt); err != nil {
		return RunRecord{}, false, err
	}
	if err := decodeRecordColumns(&record, runID, planned, results, output); err != nil {
		return RunRecord{}, false, err
	}
	return record, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, runID string, record RunRecord) error {
	planned, results, output, err := prepareRecord(&record, runID)
	if err != nil {
		return err
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		// SQLite serializes writers per transaction, so a plain read is
		// already stable here.
		var current RunStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, runID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// First save for this run.
		case err != nil:
			return err
		default:
			if err := validateStatusTransition(runID, current, record.Status); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO runs (id, status, planned_actions, action_results, last_completed_step, retry_count, final_output, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	planned_actions = excluded.planned_actions,
	action_results = excluded.action_results,
	last_completed_step = excluded.last_completed_step,
	retry_count = excluded.retry_count,
	final_output = excluded.final_output,
	error = excluded.error,
	updated_at = excluded.updated_at
`, runID, record.Status, string(planned), string(results), record.LastCompletedStep, record.RetryCount,
			nullableText(output), record.Error,
			record.CreatedAt.Format(time.RFC3339Nano), record.UpdatedAt.Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		if IsTransitionError(err) || IsUnknownStatusError(err) {
			return err
		}
		return fmt.Errorf("%w: save run %s: %v", ErrStoreIO, runID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("%w: delete run %s: %v", ErrStoreIO, runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete run %s: %v", ErrStoreIO, runID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return nil
}

func parseStoredTime(runID, value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: run %s: timestamp %q: %v", ErrCorruptRecord, runID, value, err)
	}
	return parsed, nil
}

func nullableText(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
