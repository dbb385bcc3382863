// Package evidence persists step snapshots so every validation verdict
// stays auditable after the run.
package evidence

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Evidence is one captured snapshot of the studio UI. Data holds the raw
// bytes for the evaluator; URI points at the persisted copy.
type Evidence struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Step       int       `json:"step"`
	URI        string    `json:"uri"`
	CapturedAt time.Time `json:"captured_at"`
	Data       []byte    `json:"-"`
}

// Store persists snapshot bytes under a run-scoped name and returns the
// URI of the stored copy.
type Store interface {
	Put(ctx context.Context, runID, name string, data []byte) (string, error)
}

// MemStore keeps snapshots in memory. It backs tests and dry runs.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{objects: map[string][]byte{}}
}

func (s *MemStore) Put(ctx context.Context, runID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := runID + "/" + name
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = stored
	return fmt.Sprintf("mem://%s", key), nil
}

// Get returns a stored snapshot, for test assertions.
func (s *MemStore) Get(runID, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[runID+"/"+name]
	return data, ok
}

// Len reports how many snapshots the store holds.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
