package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Apply executes a plan strictly in order under the host lock. Each
// action's precondition is re-checked against a live facts view
// immediately before applying: earlier actions in the same plan update
// the view through their declared effects, so a full re-probe is reserved
// for the next invocation.
//
// A failed action blocks its transitive dependents, which are recorded as
// skipped; independent actions still execute. Completed actions are never
// rolled back; partial convergence is allowed and visible via status.
func (e *Engine) Apply(ctx context.Context, plan *Plan) (*ConvergenceRun, error) {
	handle, err := e.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := handle.Release(); relErr != nil {
			e.log.Warn().Err(relErr).Msg("failed to release run lock")
		}
	}()

	run := &ConvergenceRun{
		ID:        uuid.New().String(),
		PlanID:    plan.ID,
		StartedAt: time.Now(),
		Results:   make([]ActionResult, 0, len(plan.Actions)),
	}

	e.log.Info().
		Str("run_id", run.ID).
		Int("actions", len(plan.Actions)).
		Msg("starting convergence run")

	live := plan.Facts.Clone()
	blocked := make(map[string]bool)
	interrupted := false

	for i, name := range plan.Actions {
		if ctx.Err() != nil {
			interrupted = true
			run.Error = NewInterruptedError(ctx.Err()).Error()
			e.skipRemaining(run, plan.Actions[i:], "interrupted")
			break
		}

		spec, ok := e.registry.Get(name)
		if !ok {
			// Unreachable: plans only reference registered actions.
			blocked[name] = true
			run.Results = append(run.Results, ActionResult{
				Name:        name,
				Status:      StatusFailed,
				Reason:      "action not registered",
				StartedAt:   time.Now(),
				CompletedAt: time.Now(),
			})
			continue
		}

		if dep := firstBlockedDependency(spec, blocked); dep != "" {
			blocked[name] = true
			now := time.Now()
			run.Results = append(run.Results, ActionResult{
				Name:        name,
				Status:      StatusSkipped,
				Reason:      fmt.Sprintf("dependency %s did not complete", dep),
				StartedAt:   now,
				CompletedAt: now,
			})
			e.log.Warn().Str("action", name).Str("dependency", dep).Msg("skipping action, dependency failed")
			e.recordActionMetric(name, StatusSkipped, 0)
			continue
		}

		if spec.Precondition(live, plan.Desired) {
			now := time.Now()
			run.Results = append(run.Results, ActionResult{
				Name:        name,
				Status:      StatusAlreadySatisfied,
				StartedAt:   now,
				CompletedAt: now,
			})
			e.log.Debug().Str("action", name).Msg("precondition already satisfied")
			continue
		}

		res := e.runAction(ctx, spec, live, plan.Desired)
		run.Results = append(run.Results, res)
		e.recordActionMetric(name, res.Status, res.Duration())

		if res.Status == StatusSuccess {
			if spec.Effect != nil {
				spec.Effect(live, plan.Desired)
			}
		} else {
			blocked[name] = true
		}
	}

	run.CompletedAt = time.Now()
	run.Outcome = e.outcome(plan, run, interrupted)

	e.log.Info().
		Str("run_id", run.ID).
		Str("outcome", string(run.Outcome)).
		Dur("duration", run.CompletedAt.Sub(run.StartedAt)).
		Msg("convergence run completed")
	e.recordRunMetric(run)

	// Record with a detached context: an operator interrupt cancels ctx,
	// and the partial run must still reach the store.
	if err := e.recorder.Record(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("failed to record run: %w", err)
	}

	return run, nil
}

// Converge probes nothing itself; it plans against the supplied snapshot
// and applies the result in one call.
func (e *Engine) Converge(ctx context.Context, facts *EnvironmentFacts, desired DesiredState) (*ConvergenceRun, error) {
	plan, err := e.Plan(facts, desired)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, plan)
}

// runAction applies a single action within its retry budget and
// per-attempt timeout.
func (e *Engine) runAction(ctx context.Context, spec *ActionSpec, live *EnvironmentFacts, desired DesiredState) ActionResult {
	res := ActionResult{
		Name:      spec.Name,
		StartedAt: time.Now(),
	}

	var lastErr error
	for attempt := 1; attempt <= spec.Retries+1; attempt++ {
		res.Attempts = attempt

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if spec.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		}

		e.log.Info().Str("action", spec.Name).Int("attempt", attempt).Msg("applying action")
		lastErr = spec.Apply(attemptCtx, live, desired)
		cancel()

		if lastErr == nil {
			res.Status = StatusSuccess
			res.CompletedAt = time.Now()
			return res
		}

		// The operator cancelled; don't burn the retry budget.
		if ctx.Err() != nil {
			break
		}

		if attempt <= spec.Retries {
			e.log.Warn().
				Err(lastErr).
				Str("action", spec.Name).
				Int("attempt", attempt).
				Int("budget", spec.Retries+1).
				Msg("action failed, retrying")
		}
	}

	res.Status = StatusFailed
	res.CompletedAt = time.Now()
	if errors.Is(lastErr, context.DeadlineExceeded) {
		res.Reason = fmt.Sprintf("timeout after %s", spec.Timeout)
	} else if lastErr != nil {
		res.Reason = lastErr.Error()
	}

	e.log.Error().Err(lastErr).Str("action", spec.Name).Msg("action failed")
	return res
}

// skipRemaining marks every not-yet-attempted action as skipped with the
// given reason.
func (e *Engine) skipRemaining(run *ConvergenceRun, names []string, reason string) {
	now := time.Now()
	for _, name := range names {
		run.Results = append(run.Results, ActionResult{
			Name:        name,
			Status:      StatusSkipped,
			Reason:      reason,
			StartedAt:   now,
			CompletedAt: now,
		})
	}
}

// outcome derives the overall run outcome from per-action results.
func (e *Engine) outcome(plan *Plan, run *ConvergenceRun, interrupted bool) RunOutcome {
	if interrupted {
		return OutcomeInterrupted
	}
	if plan.Empty() {
		return OutcomeNoop
	}

	s := run.Summary()
	switch {
	case s.Failed == 0 && s.Skipped == 0:
		return OutcomeConverged
	case s.Succeeded > 0:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

func (e *Engine) recordActionMetric(name string, status ActionStatus, d time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveAction(name, string(status), d)
	}
}

func (e *Engine) recordRunMetric(run *ConvergenceRun) {
	if e.metrics != nil {
		e.metrics.ObserveRun(string(run.Outcome), run.CompletedAt.Sub(run.StartedAt))
	}
}

// firstBlockedDependency returns the first declared dependency of spec
// that failed or was skipped earlier in this run.
func firstBlockedDependency(spec *ActionSpec, blocked map[string]bool) string {
	for _, dep := range spec.DependsOn {
		if blocked[dep] {
			return dep
		}
	}
	return ""
}
