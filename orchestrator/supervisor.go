package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mveselov-dev/songsmith/internal/observability"
	"github.com/mveselov-dev/songsmith/planner"
)

// Runner drives one request to a terminal outcome.
type Runner interface {
	Run(ctx context.Context, req planner.GenerationRequest) (SongMetadata, error)
}

var (
	// ErrRunActive means the run is already being orchestrated in this process.
	ErrRunActive = errors.New("orchestrator: run already active")
	// ErrAtCapacity means the supervisor has no free worker slot.
	ErrAtCapacity = errors.New("orchestrator: supervisor at capacity")
)

// Supervisor fans submissions out to a bounded worker group while keeping at
// most one orchestration per run id in flight. The state store's
// single-writer rule holds as long as every submission in the process goes
// through one supervisor.
type Supervisor struct {
	runner Runner
	logger *slog.Logger

	ctx   context.Context
	group *errgroup.Group

	mu     sync.Mutex
	active map[string]struct{}
}

func NewSupervisor(ctx context.Context, runner Runner, logger *slog.Logger, maxConcurrent int) *Supervisor {
	if logger == nil {
		logger = observability.NewLogger("orchestrator.supervisor")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrent)
	return &Supervisor{
		runner: runner,
		logger: logger,
		ctx:    gctx,
		group:  group,
		active: map[string]struct{}{},
	}
}

// Submit schedules a run. A duplicate submission for an active run id is
// swallowed with ErrRunActive; a full worker pool answers ErrAtCapacity
// instead of queueing.
func (s *Supervisor) Submit(req planner.GenerationRequest) error {
	if req.RunID == "" {
		return errors.New("orchestrator: run id is required")
	}

	s.mu.Lock()
	if _, ok := s.active[req.RunID]; ok {
		s.mu.Unlock()
		return ErrRunActive
	}
	s.active[req.RunID] = struct{}{}
	s.mu.Unlock()

	started := s.group.TryGo(func() error {
		defer s.release(req.RunID)
		if _, err := s.runner.Run(s.ctx, req); err != nil {
			// The outcome is persisted by the runner; it must not cancel
			// sibling runs through the group.
			observability.WithRun(s.logger, req.RunID).Error("run finished with error",
				"event", "run_errored", "error", err.Error())
		}
		return nil
	})
	if !started {
		s.release(req.RunID)
		return ErrAtCapacity
	}
	return nil
}

func (s *Supervisor) release(runID string) {
	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()
}

// Wait blocks until every accepted run has finished.
func (s *Supervisor) Wait() error {
	return s.group.Wait()
}
