package dispatch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/identity"
	"github.com/nlsantos/devc/internal/runtime"
)

// ExecRequest designates a target container and the command to run in
// it, along with the CLI-level overrides spec.md §4.10 names.
type ExecRequest struct {
	Selector identity.ContainerSelector
	Config   *config.DevContainerConfig // resolved config, nil if unavailable (bare container id)

	WorkspaceFolder string
	WorkingDir      string // CLI override
	User            string // CLI override
	Env             map[string]string // CLI --env, declaration order collapsed into a map by the caller
	ProbedEnv       map[string]string // container probe result

	Cmd []string

	ForceTTY bool
	NoTTY    bool
	StdinTTY bool
	StdoutTTY bool

	TermWidth, TermHeight uint
	Stdin                 io.Reader
	Stdout, Stderr        io.Writer
}

// Exec resolves the target container, computes the effective working
// directory/user/environment/TTY per spec.md §4.10's precedence rules,
// and runs the command via the Runtime's Exec capability.
func (d *Dispatcher) Exec(ctx context.Context, req ExecRequest) (runtime.ExecResult, error) {
	info, err := identity.ResolveContainer(ctx, d.Runtime, req.Selector)
	if err != nil {
		return runtime.ExecResult{}, err
	}

	workingDir := req.WorkingDir
	if workingDir == "" && req.Config != nil && req.Config.WorkspaceFolder != "" {
		workingDir = req.Config.WorkspaceFolder
	}
	if workingDir == "" && req.WorkspaceFolder != "" {
		workingDir = "/workspaces/" + filepath.Base(req.WorkspaceFolder)
	}
	if workingDir == "" {
		workingDir = "/"
	}

	user := req.User
	if user == "" && req.Config != nil {
		user = req.Config.RemoteUser
	}

	env := map[string]string{}
	if req.Config != nil {
		for k, v := range req.Config.RemoteEnv {
			env[k] = v
		}
	}
	for k, v := range req.ProbedEnv {
		env[k] = v
	}
	for k, v := range req.Env {
		env[k] = v
	}

	tty := req.ForceTTY || (!req.NoTTY && req.StdinTTY && req.StdoutTTY)

	if len(req.Cmd) == 0 {
		return runtime.ExecResult{}, fmt.Errorf("dispatch: exec requires a command")
	}

	return d.Runtime.Exec(ctx, runtime.ExecSpec{
		ContainerID: info.ID,
		User:        user,
		WorkingDir:  workingDir,
		Env:         envSlice(env),
		Cmd:         req.Cmd,
		TTY:         tty,
		TermWidth:   req.TermWidth,
		TermHeight:  req.TermHeight,
		Stdin:       req.Stdin,
		Stdout:      req.Stdout,
		Stderr:      req.Stderr,
	})
}
