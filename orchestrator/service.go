// Package orchestrator drives generation runs to a terminal outcome:
// execute each planned step, have it judged, persist progress, and recover
// from rejections by splicing in suggested fixes or retrying the sequence
// within a fixed budget.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mveselov-dev/songsmith/internal/observability"
	"github.com/mveselov-dev/songsmith/internal/telemetry"
	"github.com/mveselov-dev/songsmith/notify"
	"github.com/mveselov-dev/songsmith/planner"
	"github.com/mveselov-dev/songsmith/state"
	"github.com/mveselov-dev/songsmith/validator"
)

// Executor runs single planned actions against the studio session.
type Executor interface {
	Execute(ctx context.Context, action planner.Action) (planner.ActionResult, error)
	ExtractFinalOutput(ctx context.Context) map[string]string
}

// Assessor judges one executed step against its expected state.
type Assessor interface {
	Assess(ctx context.Context, runID string, step int, result planner.ActionResult, expectedState string) (validator.Verdict, error)
}

// Service owns the run state machine. All collaborators are injected; the
// service itself holds no per-run state, so one instance serves any number
// of runs as long as each run id has a single caller at a time.
type Service struct {
	store    state.Store
	planner  planner.Planner
	executor Executor
	assessor Assessor
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer

	maxRetries int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

func NewService(store state.Store, plan planner.Planner, exec Executor, assess Assessor, notifier notify.Notifier, cfg Config) *Service {
	if plan == nil {
		plan = planner.StudioPlanner{}
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	cfg = cfg.withDefaults()
	return &Service{
		store:      store,
		planner:    plan,
		executor:   exec,
		assessor:   assess,
		notifier:   notifier,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		tracer:     telemetry.Tracer("songsmith/orchestrator"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		sleep:      cfg.Sleep,
		now:        cfg.Now,
	}
}

// Run drives one generation request to a terminal outcome. It resumes from
// persisted progress when a record for the run already exists, so calling it
// again after a crash is safe: completed and failed runs return their
// persisted outcome without touching the studio.
func (s *Service) Run(ctx context.Context, req planner.GenerationRequest) (SongMetadata, error) {
	if req.RunID == "" {
		return SongMetadata{}, errors.New("orchestrator: run id is required")
	}

	ctx, span := s.tracer.Start(ctx, "songsmith.run",
		trace.WithAttributes(attribute.String("run.id", req.RunID)))
	defer span.End()

	logger := observability.WithRun(s.logger, req.RunID)

	record, found, err := s.store.Load(ctx, req.RunID)
	if err != nil {
		return SongMetadata{}, fmt.Errorf("orchestrator: load run %s: %w", req.RunID, err)
	}

	switch {
	case found && record.Status == state.StatusCompleted:
		logger.Info("run already completed, returning persisted output", "event", "run_resume_terminal")
		return s.metadata(req, record), nil
	case found && record.Status == state.StatusFailed:
		logger.Info("run already failed, returning persisted outcome", "event", "run_resume_terminal")
		return SongMetadata{}, &ExhaustedError{RunID: req.RunID, Retries: record.RetryCount, Feedback: record.Error}
	case found && len(record.PlannedActions) == 0:
		return SongMetadata{}, &CannotResumeError{RunID: req.RunID, Reason: "persisted record has no plan"}
	case found:
		logger.Info("resuming run", "event", "run_resumed",
			"last_completed_step", record.LastCompletedStep,
			"retry_count", record.RetryCount,
			"plan_length", len(record.PlannedActions))
	default:
		plan, err := s.planner.Plan(ctx, req)
		if err != nil {
			return SongMetadata{}, fmt.Errorf("orchestrator: plan run %s: %w", req.RunID, err)
		}
		record = state.NewRunRecord(req.RunID, plan, s.now())
		if err := s.store.Save(ctx, req.RunID, record); err != nil {
			return SongMetadata{}, fmt.Errorf("orchestrator: persist new run %s: %w", req.RunID, err)
		}
		logger.Info("run planned", "event", "run_planned", "plan_length", len(plan))
	}

	var (
		lastFeedback string
		lastFault    error
	)

	for {
		attemptLogger := observability.WithAttempt(logger, record.RetryCount)
		attemptFailed := false
		splicedThisAttempt := false

		for step := record.LastCompletedStep + 1; step < len(record.PlannedActions); {
			action := record.PlannedActions[step]
			stepLogger := observability.WithStep(attemptLogger, step)

			result, err := s.executeStep(ctx, step, action)
			if err != nil {
				if ctx.Err() != nil {
					return SongMetadata{}, err
				}
				// The action itself is defective; no amount of retrying
				// makes an unknown kind or target executable.
				return SongMetadata{}, s.failRun(ctx, req.RunID, &record, logger,
					fmt.Errorf("orchestrator: execute step %d of run %s: %w", step, req.RunID, err))
			}

			record.SetResult(step, result)
			if err := s.store.Save(ctx, req.RunID, record); err != nil {
				return SongMetadata{}, fmt.Errorf("orchestrator: persist result for step %d of run %s: %w", step, req.RunID, err)
			}

			verdict, err := s.assessor.Assess(ctx, req.RunID, step, result, action.Expect)
			if err != nil {
				if ctx.Err() != nil {
					return SongMetadata{}, err
				}
				kind := "transport"
				if validator.IsProtocolError(err) {
					kind = "protocol"
				}
				s.metrics.IncValidatorFault(kind)
				stepLogger.Error("step validation fault", "event", "validator_fault",
					"kind", kind, "error", err.Error())
				lastFeedback = "validator fault: " + err.Error()
				lastFault = err
				attemptFailed = true
				break
			}

			if verdict.Approved {
				record.LastCompletedStep = step
				if err := s.store.Save(ctx, req.RunID, record); err != nil {
					return SongMetadata{}, fmt.Errorf("orchestrator: persist progress for step %d of run %s: %w", step, req.RunID, err)
				}
				s.metrics.IncStep("approved")
				stepLogger.Info("step approved", "event", "step_approved")
				step++
				continue
			}

			s.metrics.IncStep("rejected")
			lastFeedback = verdict.Feedback
			lastFault = nil
			stepLogger.Warn("step rejected", "event", "step_rejected", "feedback", verdict.Feedback)

			if fix, ok := validator.ExtractRetryActions(verdict); ok {
				record.Splice(step, fix)
				if err := s.store.Save(ctx, req.RunID, record); err != nil {
					return SongMetadata{}, fmt.Errorf("orchestrator: persist spliced plan for run %s: %w", req.RunID, err)
				}
				s.metrics.IncSplice()
				splicedThisAttempt = true
				stepLogger.Info("plan spliced with suggested fix", "event", "plan_spliced",
					"fix_length", len(fix), "plan_length", len(record.PlannedActions))
				// Stay in the same attempt and re-enter at this index; a
				// usable fix costs no retry.
				continue
			}

			attemptFailed = true
			break
		}

		if !attemptFailed {
			return s.complete(ctx, req, &record, logger)
		}

		record.RetryCount++
		if !splicedThisAttempt {
			// Nothing was repaired in place, so the whole sequence restarts.
			record.LastCompletedStep = -1
		}

		if record.RetryCount >= s.maxRetries {
			record.Status = state.StatusFailed
			record.Error = lastFeedback
			if err := s.store.Save(ctx, req.RunID, record); err != nil {
				return SongMetadata{}, fmt.Errorf("orchestrator: persist failed run %s: %w", req.RunID, err)
			}
			s.metrics.IncRun("failed")
			if err := s.notifier.RunFailed(ctx, req.RunID, lastFeedback); err != nil {
				logger.Warn("failure notification failed", "event", "notify_failed", "error", err.Error())
			}
			exhausted := &ExhaustedError{RunID: req.RunID, Retries: record.RetryCount, Feedback: lastFeedback, Cause: lastFault}
			span.RecordError(exhausted)
			logger.Error("run exhausted its retry budget", "event", "run_exhausted",
				"retry_count", record.RetryCount, "feedback", lastFeedback)
			return SongMetadata{}, exhausted
		}

		if err := s.store.Save(ctx, req.RunID, record); err != nil {
			return SongMetadata{}, fmt.Errorf("orchestrator: persist retry for run %s: %w", req.RunID, err)
		}
		s.metrics.IncRetry()
		attemptLogger.Warn("attempt failed, retrying", "event", "attempt_retry",
			"retry_count", record.RetryCount,
			"resume_step", record.LastCompletedStep+1,
			"feedback", lastFeedback)
		if err := s.sleep(ctx, s.retryDelay); err != nil {
			return SongMetadata{}, err
		}
	}
}

func (s *Service) executeStep(ctx context.Context, step int, action planner.Action) (planner.ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "songsmith.step", trace.WithAttributes(
		attribute.Int("step.index", step),
		attribute.String("step.kind", string(action.Kind)),
	))
	defer span.End()
	return s.executor.Execute(ctx, action)
}

// complete extracts the provider identifiers, persists the terminal record,
// and reports success. An empty extraction does not undo the run: every step
// was validated, and re-running the sequence would bill the provider again.
func (s *Service) complete(ctx context.Context, req planner.GenerationRequest, record *state.RunRecord, logger *slog.Logger) (SongMetadata, error) {
	output := s.executor.ExtractFinalOutput(ctx)
	s.metrics.IncExtraction(output["status"])
	if output["status"] != "ok" {
		logger.Warn("final output extraction failed", "event", "output_extraction_failed",
			"error", output["error"])
	}

	record.Status = state.StatusCompleted
	record.FinalOutput = output
	record.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, req.RunID, *record); err != nil {
		return SongMetadata{}, fmt.Errorf("orchestrator: persist completed run %s: %w", req.RunID, err)
	}
	s.metrics.IncRun("completed")
	if err := s.notifier.RunSucceeded(ctx, req.RunID, output); err != nil {
		logger.Warn("success notification failed", "event", "notify_failed", "error", err.Error())
	}
	logger.Info("run completed", "event", "run_completed",
		"retry_count", record.RetryCount,
		"extraction_status", output["status"])
	return s.metadata(req, *record), nil
}

// failRun persists a terminal failure caused by a defect retries cannot
// repair and hands the cause back to the caller.
func (s *Service) failRun(ctx context.Context, runID string, record *state.RunRecord, logger *slog.Logger, cause error) error {
	record.Status = state.StatusFailed
	record.Error = cause.Error()
	if err := s.store.Save(ctx, runID, *record); err != nil {
		logger.Error("persisting terminal failure failed", "event", "terminal_persist_failed", "error", err.Error())
	}
	s.metrics.IncRun("failed")
	if err := s.notifier.RunFailed(ctx, runID, cause.Error()); err != nil {
		logger.Warn("failure notification failed", "event", "notify_failed", "error", err.Error())
	}
	logger.Error("run failed on a plan defect", "event", "run_failed_fatal", "error", cause.Error())
	return cause
}

func (s *Service) metadata(req planner.GenerationRequest, record state.RunRecord) SongMetadata {
	return SongMetadata{
		RunID:              record.RunID,
		Title:              req.Title,
		Style:              req.Style,
		ModelID:            req.ModelID,
		Persona:            req.Persona,
		Workspace:          req.Workspace,
		ProviderContentID:  record.FinalOutput["content_id"],
		ProviderContentURL: record.FinalOutput["content_url"],
		CompletedAt:        record.UpdatedAt,
	}
}
