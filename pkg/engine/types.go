package engine

import (
	"context"
	"time"
)

// OSFamily identifies the family of the host operating system.
type OSFamily string

const (
	OSFamilyDebian  OSFamily = "debian"
	OSFamilyRHEL    OSFamily = "rhel"
	OSFamilyArch    OSFamily = "arch"
	OSFamilySuse    OSFamily = "suse"
	OSFamilyAlpine  OSFamily = "alpine"
	OSFamilyUnknown OSFamily = "unknown"
)

// InitSystem identifies the service manager detected on the host.
type InitSystem string

const (
	InitSystemd InitSystem = "systemd"
	InitOpenRC  InitSystem = "openrc"
	InitSysV    InitSystem = "sysv"
	InitUnknown InitSystem = "unknown"
)

// ToolTag is a capability tag for an external tool the installer may need.
type ToolTag string

const (
	ToolApt          ToolTag = "pkg:apt"
	ToolDnf          ToolTag = "pkg:dnf"
	ToolYum          ToolTag = "pkg:yum"
	ToolPacman       ToolTag = "pkg:pacman"
	ToolZypper       ToolTag = "pkg:zypper"
	ToolApk          ToolTag = "pkg:apk"
	ToolJq           ToolTag = "has-jq"
	ToolOpenSSL      ToolTag = "has-openssl"
	ToolCheckinstall ToolTag = "has-checkinstall"
	ToolBuildChain   ToolTag = "has-buildchain"
)

// EnvironmentFacts is an immutable snapshot of the host environment,
// captured once per run at plan time. A re-probe produces a new snapshot;
// during execution the engine maintains a live copy updated only by each
// action's declared effect.
type EnvironmentFacts struct {
	// OSFamily is the detected OS family, OSFamilyUnknown if the release
	// identifier was not recognized.
	OSFamily OSFamily `json:"os_family"`

	// InitSystem is the detected service manager.
	InitSystem InitSystem `json:"init_system"`

	// InstalledVersion is the version of the installed daemon binary,
	// empty if the daemon is not installed.
	InstalledVersion string `json:"installed_version,omitempty"`

	// Running reports whether the daemon process is currently active.
	Running bool `json:"running"`

	// ServiceInstalled reports whether a service descriptor for the
	// detected init system is present and enabled.
	ServiceInstalled bool `json:"service_installed"`

	// AccountExists reports whether the service account is present.
	AccountExists bool `json:"account_exists"`

	// ConfigInitialized reports whether the daemon settings file exists
	// with the required fields.
	ConfigInitialized bool `json:"config_initialized"`

	// TuningApplied reports whether the network tuning drop-in matches
	// the configured values.
	TuningApplied bool `json:"tuning_applied"`

	// Tools is the set of capability tags observed on the host.
	Tools map[ToolTag]bool `json:"tools"`

	// CollectedAt is when the snapshot was taken.
	CollectedAt time.Time `json:"collected_at"`
}

// HasTool reports whether the given capability tag was observed.
func (f *EnvironmentFacts) HasTool(tag ToolTag) bool {
	return f.Tools[tag]
}

// Clone returns a deep copy of the facts for use as a live view during
// plan execution.
func (f *EnvironmentFacts) Clone() *EnvironmentFacts {
	c := *f
	c.Tools = make(map[ToolTag]bool, len(f.Tools))
	for k, v := range f.Tools {
		c.Tools[k] = v
	}
	return &c
}

// CredentialMode selects how the RPC credential is converged.
type CredentialMode string

const (
	// CredentialUnchanged leaves the persisted credential as-is.
	CredentialUnchanged CredentialMode = "unchanged"

	// CredentialGenerate replaces the credential with a random one.
	CredentialGenerate CredentialMode = "generate-random"

	// CredentialSet replaces the credential with the supplied secret.
	CredentialSet CredentialMode = "set"
)

// CredentialPolicy is the desired RPC credential state.
type CredentialPolicy struct {
	Mode CredentialMode `json:"mode"`

	// Secret is the plaintext credential when Mode is CredentialSet.
	Secret string `json:"-"`
}

// DesiredState is the target state a convergence run drives toward. It is
// fully specified by the caller; the engine never prompts.
type DesiredState struct {
	// Version is the target daemon version, or "latest".
	Version string `json:"version"`

	// Running is the target running state of the daemon.
	Running bool `json:"running"`

	// Credential is the target RPC credential policy.
	Credential CredentialPolicy `json:"credential"`
}

// ActionStatus is the tagged outcome of a single action.
type ActionStatus string

const (
	StatusSuccess          ActionStatus = "success"
	StatusAlreadySatisfied ActionStatus = "already-satisfied"
	StatusSkipped          ActionStatus = "skipped"
	StatusFailed           ActionStatus = "failed"
)

// ActionResult records the outcome of one action within a run.
type ActionResult struct {
	Name        string       `json:"name"`
	Status      ActionStatus `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Attempts    int          `json:"attempts"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// Duration returns the wall time spent on the action.
func (r ActionResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// ActionSpec describes a named, idempotent installer action. Preconditions
// must be cheap, side-effect-free, and re-checkable; this is what makes
// re-running the whole tool safe.
type ActionSpec struct {
	// Name uniquely identifies the action within a registry.
	Name string

	// DependsOn lists action names that must run before this one when
	// both appear in the same plan.
	DependsOn []string

	// Precondition reports whether the action's outcome is already in
	// place for the given facts and desired state. True means skip.
	Precondition func(facts *EnvironmentFacts, desired DesiredState) bool

	// Apply performs the action. It must be safe to invoke repeatedly.
	Apply func(ctx context.Context, facts *EnvironmentFacts, desired DesiredState) error

	// Effect updates the live facts view after a successful apply, so
	// later actions in the same plan see the new state without a full
	// re-probe.
	Effect func(facts *EnvironmentFacts, desired DesiredState)

	// RequiresStopped marks actions that must not run while the daemon
	// is active. The planner brackets them with stop/start actions.
	RequiresStopped bool

	// Retries is the number of additional attempts after a failure.
	Retries int

	// Timeout bounds a single attempt. Zero means no per-attempt bound.
	Timeout time.Duration

	// Idempotent must be true for every registered action; enforced at
	// registration time.
	Idempotent bool
}

// Plan is an ordered sequence of action names, topologically sorted by
// their dependencies with registration order breaking ties. Planning the
// same facts and desired state twice yields the identical sequence.
type Plan struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Facts     EnvironmentFacts `json:"facts"`
	Desired   DesiredState     `json:"desired"`
	Actions   []string         `json:"actions"`
}

// Empty reports whether the host is already converged.
func (p *Plan) Empty() bool {
	return len(p.Actions) == 0
}

// RunOutcome is the overall outcome of a convergence run.
type RunOutcome string

const (
	// OutcomeConverged means every planned action succeeded or was
	// already satisfied.
	OutcomeConverged RunOutcome = "converged"

	// OutcomeNoop means the plan was empty; nothing to do.
	OutcomeNoop RunOutcome = "noop"

	// OutcomePartial means some actions succeeded but a failure halted
	// one or more dependency branches.
	OutcomePartial RunOutcome = "partial"

	// OutcomeFailed means no action made progress.
	OutcomeFailed RunOutcome = "failed"

	// OutcomeInterrupted means the operator cancelled between actions.
	OutcomeInterrupted RunOutcome = "interrupted"
)

// ConvergenceRun records one plan execution for the status view. It is
// persisted on completion, success or failure, never mid-flight.
type ConvergenceRun struct {
	ID          string         `json:"id"`
	PlanID      string         `json:"plan_id"`
	Outcome     RunOutcome     `json:"outcome"`
	Results     []ActionResult `json:"results"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Summary tallies the per-action outcomes of a run.
func (r *ConvergenceRun) Summary() RunSummary {
	s := RunSummary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusAlreadySatisfied:
			s.AlreadySatisfied++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	Total            int `json:"total"`
	Succeeded        int `json:"succeeded"`
	AlreadySatisfied int `json:"already_satisfied"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
}

// LockHandle owns an exclusive run marker for the lifetime of a run.
type LockHandle interface {
	// Release frees the lock. It is idempotent and is invoked on every
	// exit path.
	Release() error
}

// Locker guards convergence runs so only one proceeds at a time per host.
type Locker interface {
	Acquire(ctx context.Context) (LockHandle, error)
}

// Recorder persists completed convergence runs.
type Recorder interface {
	Record(ctx context.Context, run *ConvergenceRun) error
}
