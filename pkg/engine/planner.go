package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/telemetry"
)

// Run-state action names. The planner treats these specially: stop-daemon
// is included naturally only when the desired state is stopped, and both
// are injected as an implicit bracket around actions that must not run
// while the daemon is active.
const (
	StopDaemonAction  = "stop-daemon"
	StartDaemonAction = "start-daemon"
)

// Engine computes convergence plans and applies them under a host lock.
// It performs no internal parallelism: actions run strictly sequentially
// because later actions depend on facts only true after earlier ones
// complete.
type Engine struct {
	registry *Registry
	locker   Locker
	recorder Recorder
	metrics  *telemetry.Metrics
	log      zerolog.Logger
}

// New creates an engine over a finished action catalog. The registry is
// validated here so unresolved dependencies fail at startup, never at
// runtime.
func New(registry *Registry, locker Locker, recorder Recorder, metrics *telemetry.Metrics, log zerolog.Logger) (*Engine, error) {
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		registry: registry,
		locker:   locker,
		recorder: recorder,
		metrics:  metrics,
		log:      log.With().Str("component", "engine").Logger(),
	}, nil
}

// Plan computes the ordered set of actions whose preconditions are unmet
// for the given facts and desired state. The order is a stable
// topological sort of the dependency graph: ties are broken by
// registration order, so identical inputs always produce the identical
// plan.
//
// When a selected action requires the daemon stopped and the daemon is
// running, the plan is bracketed: stop-daemon is injected, and
// start-daemon is appended when the desired state is running, so the
// post-state has the daemon running again.
func (e *Engine) Plan(facts *EnvironmentFacts, desired DesiredState) (*Plan, error) {
	include := make(map[string]bool, e.registry.Len())
	needsBracket := false

	for _, spec := range e.registry.Specs() {
		if spec.Name == StopDaemonAction {
			// stop-daemon's precondition ("daemon is stopped") is
			// deliberately desired-state-blind so the executor's
			// re-check works inside a bracket. Natural inclusion is
			// therefore gated on the desired state here.
			if facts.Running && !desired.Running {
				include[spec.Name] = true
			}
			continue
		}
		if spec.Precondition(facts, desired) {
			continue
		}
		include[spec.Name] = true
		if spec.RequiresStopped {
			needsBracket = true
		}
	}

	if needsBracket && facts.Running && !include[StopDaemonAction] {
		if _, ok := e.registry.Get(StopDaemonAction); ok {
			include[StopDaemonAction] = true
			if desired.Running {
				if _, ok := e.registry.Get(StartDaemonAction); ok {
					include[StartDaemonAction] = true
				}
			}
		}
	}

	pending := make([]*ActionSpec, 0, len(include))
	for _, spec := range e.registry.Specs() {
		if include[spec.Name] {
			pending = append(pending, spec)
		}
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Facts:     *facts.Clone(),
		Desired:   desired,
		Actions:   e.sortPending(pending, include),
	}

	e.log.Debug().
		Int("actions", len(plan.Actions)).
		Strs("order", plan.Actions).
		Msg("computed convergence plan")

	return plan, nil
}

// sortPending emits the working set in dependency order. Dependencies
// outside the working set are already satisfied and do not constrain the
// order. Registration order breaks ties: each round emits the
// first-registered action whose in-plan dependencies have all been
// emitted.
func (e *Engine) sortPending(pending []*ActionSpec, inPlan map[string]bool) []string {
	order := make([]string, 0, len(pending))
	emitted := make(map[string]bool, len(pending))

	for len(order) < len(pending) {
		progressed := false
		for _, spec := range pending {
			if emitted[spec.Name] {
				continue
			}
			ready := true
			for _, dep := range spec.DependsOn {
				if inPlan[dep] && !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, spec.Name)
				emitted[spec.Name] = true
				progressed = true
				break
			}
		}
		if !progressed {
			// Unreachable: cycles are rejected at registration time.
			break
		}
	}

	return order
}
