package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/nlsantos/devc/internal/runtime"
)

// CommandOutcome is the result of running a single substituted
// command, independent of whether it ran on the host or in a
// container.
type CommandOutcome struct {
	ExitCode int
	Duration time.Duration
	// TransportErr is set only when the command could not be invoked
	// at all (process spawn failure, exec API error); a non-zero
	// ExitCode from a command that ran is not a TransportErr.
	TransportErr error
}

// runHostCommand spawns cmdStr via the user's shell (or /bin/sh) on
// the host, mirroring the teacher's runLifecycleCommandOnHost.
func runHostCommand(ctx context.Context, workingDir string, env []string, cmdStr string) CommandOutcome {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	start := time.Now()
	execCmd := exec.CommandContext(ctx, shell, "-c", cmdStr)
	execCmd.Dir = workingDir
	execCmd.Env = env
	out, err := execCmd.CombinedOutput()
	duration := time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		slog.Debug("lifecycle: host command completed", "command", cmdStr, "output", string(out))
		return CommandOutcome{ExitCode: 0, Duration: duration}
	case errors.As(err, &exitErr):
		slog.Debug("lifecycle: host command failed", "command", cmdStr, "exitCode", exitErr.ExitCode(), "output", string(out))
		return CommandOutcome{ExitCode: exitErr.ExitCode(), Duration: duration}
	default:
		slog.Error("lifecycle: failed to spawn host command", "command", cmdStr, "error", err)
		return CommandOutcome{Duration: duration, TransportErr: err}
	}
}

// runContainerCommand executes cmdStr inside the container via the
// Runtime's exec capability, as `sh -c cmdStr`.
func runContainerCommand(ctx context.Context, rt runtime.Runtime, containerID, user, workingDir string, env []string, cmdStr string) CommandOutcome {
	start := time.Now()
	result, err := rt.Exec(ctx, runtime.ExecSpec{
		ContainerID: containerID,
		User:        user,
		WorkingDir:  workingDir,
		Env:         env,
		Cmd:         []string{"sh", "-c", cmdStr},
	})
	duration := time.Since(start)
	if err != nil {
		slog.Error("lifecycle: container exec failed", "command", cmdStr, "error", err)
		return CommandOutcome{Duration: duration, TransportErr: err}
	}
	return CommandOutcome{ExitCode: result.ExitCode, Duration: duration}
}
