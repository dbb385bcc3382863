package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a requested run cannot be located.
	ErrNotFound = errors.New("state: not found")
	// ErrCorruptRecord marks a persisted record that no longer parses.
	// Callers must not treat it as an absent run.
	ErrCorruptRecord = errors.New("state: corrupt record")
	// ErrStoreIO marks a read or write that failed at the storage layer.
	ErrStoreIO = errors.New("state: io failure")
)

// Store persists run records. Load reports absence through the boolean,
// never through an error: a missing record is the normal first-run case.
// Save overwrites the whole record atomically and stamps UpdatedAt; status
// regressions from a terminal record are rejected with a TransitionError.
type Store interface {
	Load(ctx context.Context, runID string) (RunRecord, bool, error)
	Save(ctx context.Context, runID string, record RunRecord) error
	// Delete clears a run so its ID can be reused. It backs explicit
	// operator resets and is never called by the orchestration loop.
	Delete(ctx context.Context, runID string) error
}

// MemStore is an in-memory Store for tests and dry runs. Records round-trip
// through JSON so persistence bugs surface the same way they would on a
// database backend.
type MemStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{records: map[string][]byte{}}
}

func (s *MemStore) Load(ctx context.Context, runID string) (RunRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return RunRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.records[runID]
	if !ok {
		return RunRecord{}, false, nil
	}
	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return RunRecord{}, false, fmt.Errorf("%w: run %s: %v", ErrCorruptRecord, runID, err)
	}
	if !containsStatus(record.Status) {
		return RunRecord{}, false, fmt.Errorf("%w: run %s: unknown status %q", ErrCorruptRecord, runID, record.Status)
	}
	return record, true, nil
}

func (s *MemStore) Save(ctx context.Context, runID string, record RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record.RunID = runID
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.records[runID]; ok {
		var current RunRecord
		if err := json.Unmarshal(data, &current); err == nil {
			if err := validateStatusTransition(runID, current.Status, record.Status); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: save run %s: %v", ErrStoreIO, runID, err)
	}
	s.records[runID] = data
	return nil
}

func (s *MemStore) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[runID]; !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	delete(s.records, runID)
	return nil
}

// Corrupt overwrites a stored record with unparsable bytes, for tests.
func (s *MemStore) Corrupt(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[runID] = []byte("{not json")
}
