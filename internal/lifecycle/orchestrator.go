// Package lifecycle implements the six-phase devcontainer lifecycle
// state machine: command aggregation from features and config,
// host/container execution, marker-based resume, and summary
// rendering.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/feature"
	"github.com/nlsantos/devc/internal/progress"
	"github.com/nlsantos/devc/internal/redact"
	"github.com/nlsantos/devc/internal/runtime"
	"github.com/nlsantos/devc/internal/substitute"
)

// DefaultNonBlockingTimeout is the per-phase timeout applied to
// postStart/postAttach when RunOptions doesn't override it.
const DefaultNonBlockingTimeout = 5 * time.Minute

// initializePhase tags initialize's progress events; it carries no
// marker and is never reported in the rendered Summary, since it runs
// unconditionally on every invocation, on the host, ahead of the
// container phases.
const initializePhase progress.Phase = "initialize"

// containerPhases are the blocking, marker-gated phases that run
// inside the container in order.
var containerPhases = []progress.Phase{
	progress.PhaseOnCreate, progress.PhaseUpdateContent, progress.PhasePostCreate, progress.PhaseDotfiles,
}

// nonBlockingPhasesOrder is postStart followed by postAttach, queued
// after the blocking phases complete.
var nonBlockingPhasesOrder = []progress.Phase{progress.PhasePostStart, progress.PhasePostAttach}

// ErrLifecycle reports a transport-level failure (the exec capability
// itself could not be invoked) that aborts the remaining run.
type ErrLifecycle struct {
	Phase progress.Phase
	Err   error
}

func (e *ErrLifecycle) Error() string {
	return fmt.Sprintf("lifecycle: phase %s: %v", e.Phase, e.Err)
}

func (e *ErrLifecycle) Unwrap() error { return e.Err }

// Orchestrator runs the lifecycle phases for a single `up` invocation.
type Orchestrator struct {
	Runtime            runtime.Runtime
	Emitter            *progress.Emitter
	Redactor           *redact.Registry
	NonBlockingTimeout time.Duration
}

// New returns an Orchestrator with sane defaults; a nil emitter or
// redactor is replaced with a no-op/default instance.
func New(rt runtime.Runtime, emitter *progress.Emitter, redactor *redact.Registry) *Orchestrator {
	if emitter == nil {
		emitter = progress.NewEmitter(nil)
	}
	if redactor == nil {
		redactor = redact.Default()
	}
	return &Orchestrator{Runtime: rt, Emitter: emitter, Redactor: redactor, NonBlockingTimeout: DefaultNonBlockingTimeout}
}

// RunOptions carries everything the orchestrator needs to execute one
// `up` invocation's lifecycle.
type RunOptions struct {
	Config      *config.DevContainerConfig
	Plan        *feature.Plan
	ContainerID string

	WorkspaceRoot            string
	LocalWorkspaceFolder     string
	ContainerWorkspaceFolder string
	DevcontainerID           string

	Prebuild       bool
	SkipPostCreate bool
	SkipPostAttach bool
}

// Run executes initialize, then the four blocking container phases,
// then the non-blocking postStart/postAttach queue, and returns a
// rendered Summary. A transport failure during a blocking phase
// aborts the remaining phases and is returned as an *ErrLifecycle;
// non-blocking phase failures never abort the run and are instead
// aggregated into the summary's BackgroundErrors.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (progress.Summary, error) {
	timeout := o.NonBlockingTimeout
	if timeout <= 0 {
		timeout = DefaultNonBlockingTimeout
	}

	priorMarkers := LoadMarkers(opts.WorkspaceRoot)
	mode := DeriveMode(opts.Prebuild, opts.SkipPostCreate, priorMarkers)

	hostCtx := substitute.Context{LocalWorkspaceFolder: opts.LocalWorkspaceFolder, DevcontainerID: opts.DevcontainerID}
	containerCtx := hostCtx
	containerCtx.ContainerWorkspaceFolder = opts.ContainerWorkspaceFolder
	if opts.Config != nil {
		containerCtx.ContainerEnv = opts.Config.ContainerEnv
	}

	if err := o.runInitialize(ctx, opts, hostCtx); err != nil {
		return progress.Summary{}, err
	}

	var states []progress.PhaseState
	var failed bool

	for _, phase := range containerPhases {
		if skip, reason := shouldSkipPhase(mode, phase, priorMarkers, opts.SkipPostAttach); skip {
			states = append(states, progress.PhaseState{Phase: phase, Status: progress.StatusSkipped, Reason: reason})
			_ = writeMarker(opts.WorkspaceRoot, phase, progress.StatusSkipped, reason)
			continue
		}

		state, transportErr := o.runContainerPhase(ctx, phase, opts, containerCtx)
		states = append(states, state)
		_ = writeMarker(opts.WorkspaceRoot, phase, state.Status, state.Reason)
		if state.Status == progress.StatusFailed {
			failed = true
		}
		if transportErr != nil {
			return progress.Summary{}, &ErrLifecycle{Phase: phase, Err: transportErr}
		}
	}

	var backgroundErrors []string
	for _, phase := range nonBlockingPhasesOrder {
		if skip, reason := shouldSkipPhase(mode, phase, priorMarkers, opts.SkipPostAttach); skip {
			states = append(states, progress.PhaseState{Phase: phase, Status: progress.StatusSkipped, Reason: reason})
			_ = writeMarker(opts.WorkspaceRoot, phase, progress.StatusSkipped, reason)
			continue
		}

		state, bgErr := o.runNonBlockingPhase(ctx, phase, opts, containerCtx, timeout)
		states = append(states, state)
		_ = writeMarker(opts.WorkspaceRoot, phase, state.Status, state.Reason)
		if bgErr != "" {
			backgroundErrors = append(backgroundErrors, bgErr)
		}
	}

	priorStates := make([]progress.PhaseState, 0, len(priorMarkers))
	for phase, m := range priorMarkers {
		priorStates = append(priorStates, progress.PhaseState{Phase: phase, Status: m.Status, Reason: m.Reason})
	}

	summary := progress.FromPhaseStates(string(mode), states, failed, priorStates).WithBackgroundErrors(backgroundErrors)
	return summary, nil
}

func (o *Orchestrator) runInitialize(ctx context.Context, opts RunOptions, hostCtx substitute.Context) error {
	if opts.Config == nil || opts.Config.InitializeCommand.IsZero() {
		return nil
	}
	commands, err := opts.Config.InitializeCommand.Flatten()
	if err != nil {
		return fmt.Errorf("lifecycle: initialize: %w", err)
	}

	o.Emitter.PhaseBegin(initializePhase)
	var phaseErr error
	for _, cmd := range commands {
		substituted, _, _ := substitute.ResolveString(cmd, hostCtx, 0, false)
		redacted := o.Redactor.RedactText(substituted)
		o.Emitter.CommandBegin(initializePhase, "", redacted)
		outcome := runHostCommand(ctx, opts.LocalWorkspaceFolder, nil, substituted)
		if outcome.TransportErr != nil {
			o.Emitter.CommandEnd(initializePhase, "", redacted, outcome.TransportErr)
			o.Emitter.PhaseEnd(initializePhase, outcome.TransportErr)
			return &ErrLifecycle{Phase: initializePhase, Err: outcome.TransportErr}
		}
		o.Emitter.CommandEnd(initializePhase, "", redacted, nil)
		if outcome.ExitCode != 0 {
			phaseErr = fmt.Errorf("lifecycle: initialize: command %q exited %d", redacted, outcome.ExitCode)
		}
	}
	o.Emitter.PhaseEnd(initializePhase, nil)
	if phaseErr != nil {
		slog.Warn("lifecycle: initialize phase had failing commands", "error", phaseErr)
	}
	return nil
}

// runContainerPhase runs every aggregated command for phase in order,
// continuing past non-zero exits (commands are independent) but
// aborting immediately on a transport failure.
func (o *Orchestrator) runContainerPhase(ctx context.Context, phase progress.Phase, opts RunOptions, substCtx substitute.Context) (progress.PhaseState, error) {
	commands, err := AggregateCommands(phase, opts.Plan, opts.Config)
	if err != nil {
		return progress.PhaseState{Phase: phase, Status: progress.StatusFailed, Reason: err.Error()}, nil
	}
	if len(commands) == 0 {
		return progress.PhaseState{Phase: phase, Status: progress.StatusExecuted}, nil
	}

	remoteUser := ""
	var remoteEnv []string
	if opts.Config != nil {
		remoteUser = opts.Config.RemoteUser
		for k, v := range opts.Config.RemoteEnv {
			remoteEnv = append(remoteEnv, k+"="+v)
		}
	}

	o.Emitter.PhaseBegin(phase)
	success := true
	for _, cmd := range commands {
		substituted, _, _ := substitute.ResolveString(cmd.Value, substCtx, 0, false)
		redacted := o.Redactor.RedactText(substituted)
		o.Emitter.CommandBegin(phase, cmd.Source.FeatureID, redacted)

		outcome := runContainerCommand(ctx, o.Runtime, opts.ContainerID, remoteUser, opts.ContainerWorkspaceFolder, remoteEnv, substituted)
		if outcome.TransportErr != nil {
			o.Emitter.CommandEnd(phase, cmd.Source.FeatureID, redacted, outcome.TransportErr)
			o.Emitter.PhaseEnd(phase, outcome.TransportErr)
			return progress.PhaseState{Phase: phase, Status: progress.StatusFailed, Reason: outcome.TransportErr.Error()}, outcome.TransportErr
		}
		o.Emitter.CommandEnd(phase, cmd.Source.FeatureID, redacted, nil)
		if outcome.ExitCode != 0 {
			success = false
			slog.Warn("lifecycle: command failed", "phase", phase, "command", redacted, "exitCode", outcome.ExitCode)
		}
	}
	o.Emitter.PhaseEnd(phase, nil)

	if !success {
		return progress.PhaseState{Phase: phase, Status: progress.StatusFailed, Reason: "one or more commands exited non-zero"}, nil
	}
	return progress.PhaseState{Phase: phase, Status: progress.StatusExecuted}, nil
}

// runNonBlockingPhase enforces timeout against the phase as a whole,
// never returning a fatal error: failures and timeouts are reported
// back as a background error string.
func (o *Orchestrator) runNonBlockingPhase(ctx context.Context, phase progress.Phase, opts RunOptions, substCtx substitute.Context, timeout time.Duration) (progress.PhaseState, string) {
	phaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		state progress.PhaseState
		err   error
	}
	done := make(chan result, 1)
	go func() {
		state, err := o.runContainerPhase(phaseCtx, phase, opts, substCtx)
		done <- result{state: state, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.state, fmt.Sprintf("phase %s failed: %v", phase, r.err)
		}
		if r.state.Status == progress.StatusFailed {
			return r.state, fmt.Sprintf("phase %s failed: %s", phase, r.state.Reason)
		}
		return r.state, ""
	case <-phaseCtx.Done():
		msg := fmt.Sprintf("phase %s timed out after %s", phase, timeout)
		return progress.PhaseState{Phase: phase, Status: progress.StatusFailed, Reason: "timed out"}, msg
	}
}
