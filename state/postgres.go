package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	planned_actions JSONB NOT NULL,
	action_results JSONB NOT NULL,
	last_completed_step INTEGER NOT NULL,
	retry_count INTEGER NOT NULL,
	final_output JSONB,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists run records in PostgreSQL, one row per run.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore prepares the store and ensures the runs table exists.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("%w: migrate runs table: %v", ErrStoreIO, err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context, runID string) (RunRecord, bool, error) {
	var (
		record  RunRecord
		planned []byte
		results []byte
		output  []byte
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, status, planned_actions, action_results, last_completed_step, retry_count, final_output, error, created_at, updated_at
FROM runs
WHERE id = $1
`, runID).Scan(
		&record.RunID,
		&record.Status,
		&planned,
		&results,
		&record.LastCompletedStep,
		&record.RetryCount,
		&output,
		&record.Error,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, fmt.Errorf("%w: load run %s: %v", ErrStoreIO, runID, err)
	}

	if err := decodeRecordColumns(&record, runID, planned, results, output); err != nil {
		return RunRecord{}, false, err
	}
	return record, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, runID string, record RunRecord) error {
	planned, results, output, err := prepareRecord(&record, runID)
	if err != nil {
		return err
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		var current RunStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = $1 FOR UPDATE`, runID).Scan(&current)
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	planned_actions = EXCLUDED.planned_actions,
	action_results = EXCLUDED.action_results,
	last_completed_step = EXCLUDED.last_completed_step,
	retry_count = EXCLUDED.retry_count,
	final_output = EXCLUDED.final_output,
	error = EXCLUDED.error,
	updated_at = EXCLUDED.updated_at
`, runID, record.Status, planned, results, record.LastCompletedStep, record.RetryCount,
			nullableJSON(output), record.Error, record.CreatedAt, record.UpdatedAt)
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

func (s *PostgresStore) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = $1`, runID)
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

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// prepareRecord stamps timestamps, validates invariants, and encodes the
// JSON columns shared by both SQL backends.
func prepareRecord(record *RunRecord, runID string) (planned, results, output []byte, err error) {
	record.RunID = runID
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if err := record.Validate(); err != nil {
		return nil, nil, nil, err
	}

	planned, err = json.Marshal(record.PlannedActions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: encode plan for run %s: %v", ErrStoreIO, runID, err)
	}
	results, err = json.Marshal(record.ActionResults)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: encode results for run %s: %v", ErrStoreIO, runID, err)
	}
	if record.FinalOutput != nil {
		output, err = json.Marshal(record.FinalOutput)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: encode output for run %s: %v", ErrStoreIO, runID, err)
		}
	}
	return planned, results, output, nil
}

// decodeRecordColumns rebuilds the JSON columns of a loaded row. Parse
// failures are corruption, distinct from IO failures.
func decodeRecordColumns(record *RunRecord, runID string, planned, results, output []byte) error {
	if !containsStatus(record.Status) {
		return fmt.Errorf("%w: run %s: unknown status %q", ErrCorruptRecord, runID, record.Status)
	}
	if err := json.Unmarshal(planned, &record.PlannedActions); err != nil {
		return fmt.Errorf("%w: run %s: planned actions: %v", ErrCorruptRecord, runID, err)
	}
	if err := json.Unmarshal(results, &record.ActionResults); err != nil {
		return fmt.Errorf("%w: run %s: action results: %v", ErrCorruptRecord, runID, err)
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &record.FinalOutput); err != nil {
			return fmt.Errorf("%w: run %s: final output: %v", ErrCorruptRecord, runID, err)
		}
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: run %s: %v", ErrCorruptRecord, runID, err)
	}
	return nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}
