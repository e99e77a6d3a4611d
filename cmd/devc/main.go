// Package main houses the entrypoint for the devc CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/nlsantos/devc/internal/cli"
	"github.com/nlsantos/devc/internal/dispatch"
	"github.com/nlsantos/devc/internal/identity"
	"github.com/nlsantos/devc/internal/progress"
	"github.com/nlsantos/devc/internal/redact"
	"github.com/nlsantos/devc/internal/runtime"
)

const AppName string = "devc"
const AppVersion string = "0.1.0"

func main() {
	os.Exit(int(run()))
}

func run() cli.ExitCode {
	cmd := cli.NewCommand(AppName, AppVersion)

	rt, err := runtime.NewMobyRuntime(cmd.Options.Socket, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc: no reachable container runtime socket:", err)
		return cli.ExitNoRuntimeSocket
	}

	resolver, err := dispatch.NewResolver()
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc:", err)
		return cli.ExitError
	}

	redactor := redact.Default()
	var emitter *progress.Emitter
	if cmd.Options.JSON {
		emitter = progress.NewEmitter(func(ev progress.Event) {
			data, _ := json.Marshal(ev)
			fmt.Println(redactor.RedactText(string(data)))
		})
	} else {
		emitter = progress.NewEmitter(nil)
	}

	d := dispatch.New(rt, resolver, emitter, redactor)
	ctx := context.Background()

	workspace, err := cmd.Workspace()
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc:", err)
		return cli.ExitError
	}

	switch cmd.Subcommand() {
	case "up":
		return runUp(ctx, cmd, d, workspace)
	case "build":
		return runBuild(ctx, cmd, d, workspace)
	case "exec":
		return runExec(ctx, cmd, d, workspace)
	case "down":
		return runDown(ctx, cmd, d, workspace)
	case "read-configuration":
		return runReadConfiguration(ctx, cmd, d, workspace)
	case "doctor":
		return runDoctor(ctx, cmd, d, workspace)
	case "":
		fmt.Fprintln(os.Stderr, "devc: missing subcommand; try up, build, exec, down, read-configuration, or doctor")
		return cli.ExitErrorParsingFlags
	default:
		fmt.Fprintf(os.Stderr, "devc: unknown subcommand %q\n", cmd.Subcommand())
		return cli.ExitErrorParsingFlags
	}
}

func runUp(ctx context.Context, cmd *cli.Command, d *dispatch.Dispatcher, workspace string) cli.ExitCode {
	var out io.Writer
	if !cmd.SuppressOutput() {
		out = os.Stderr
	}
	result, err := d.Up(ctx, dispatch.UpRequest{
		WorkspaceFolder:               workspace,
		ConfigPath:                    cmd.Options.ConfigPath,
		PreferCLIFeatures:             cmd.Options.PreferCLIFeatures,
		FrozenLockfile:                cmd.Options.FrozenLockfile,
		IgnoreHostRequirementsFailure: cmd.Options.IgnoreHostRequirementsFailure,
		RemoveExisting:                cmd.Options.RemoveExisting,
		Prebuild:                      cmd.Options.Prebuild,
		SkipPostCreate:                cmd.Options.SkipPostCreate,
		SkipPostAttach:                cmd.Options.SkipPostAttach,
		Strict:                        cmd.Options.Strict,
		BuildOutput:                   out,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc up:", err)
		return cli.ExitError
	}
	if cmd.Options.JSON {
		fmt.Println(result.Summary.RenderJSON())
	} else {
		fmt.Println(result.Summary.RenderText(term.IsTerminal(int(os.Stdout.Fd()))))
		for _, w := range result.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}
	return cli.ExitNormal
}

func runBuild(ctx context.Context, cmd *cli.Command, d *dispatch.Dispatcher, workspace string) cli.ExitCode {
	var out io.Writer
	if !cmd.SuppressOutput() {
		out = os.Stderr
	}
	result, err := d.Build(ctx, dispatch.BuildRequest{
		WorkspaceFolder:    workspace,
		ConfigPath:         cmd.Options.ConfigPath,
		PreferCLIFeatures:  cmd.Options.PreferCLIFeatures,
		Strict:             cmd.Options.Strict,
		WriteLockfile:      cmd.Options.WriteLockfile,
		ForceWriteLockfile: cmd.Options.ForceLockfile,
		Output:             out,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc build:", err)
		return cli.ExitError
	}
	if cmd.Options.JSON {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Println("built", result.ImageTag)
		if result.LockPath != "" {
			fmt.Println("wrote lockfile", result.LockPath)
		}
	}
	return cli.ExitNormal
}

func runExec(ctx context.Context, cmd *cli.Command, d *dispatch.Dispatcher, workspace string) cli.ExitCode {
	args := cmd.PositionalArgs()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "devc exec: missing command")
		return cli.ExitErrorParsingFlags
	}

	resolved, err := dispatch.LoadAndSubstitute(workspace, cmd.Options.ConfigPath, nil, cmd.Options.Strict)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc exec:", err)
		return cli.ExitInvalidConfig
	}

	stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
	stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))

	selector := identity.ContainerSelector{
		Labels:          identity.Labels(resolved.WorkspaceHash, resolved.ConfigHash, resolved.Config.Name),
		WorkspaceFolder: workspace,
	}
	result, err := d.Exec(ctx, dispatch.ExecRequest{
		Selector:        selector,
		Config:          resolved.Config,
		WorkspaceFolder: workspace,
		WorkingDir:      cmd.Options.ExecWorkdir,
		User:            cmd.Options.User,
		Env:             cmd.EnvMap(),
		Cmd:             args,
		ForceTTY:        cmd.Options.ForceTTY,
		NoTTY:           cmd.Options.NoTTY,
		StdinTTY:        stdinTTY,
		StdoutTTY:       stdoutTTY,
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc exec:", err)
		return cli.ExitError
	}
	return cli.ExitCode(result.ExitCode)
}

func runDown(ctx context.Context, cmd *cli.Command, d *dispatch.Dispatcher, workspace string) cli.ExitCode {
	resolved, err := dispatch.LoadAndSubstitute(workspace, cmd.Options.ConfigPath, nil, cmd.Options.Strict)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc down:", err)
		return cli.ExitInvalidConfig
	}

	composeFiles := dispatch.ComposeFiles(resolved.Config.DockerComposeFile)

	selector := identity.ContainerSelector{
		Labels:          identity.Labels(resolved.WorkspaceHash, resolved.ConfigHash, resolved.Config.Name),
		WorkspaceFolder: workspace,
	}
	if err := d.Down(ctx, dispatch.DownRequest{
		Selector:        selector,
		ComposeFiles:    composeFiles,
		WorkspaceFolder: workspace,
		RemoveContainer: cmd.Options.RemoveExisting,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "devc down:", err)
		return cli.ExitError
	}
	return cli.ExitNormal
}

func runReadConfiguration(ctx context.Context, cmd *cli.Command, d *dispatch.Dispatcher, workspace string) cli.ExitCode {
	result, err := d.ReadConfiguration(ctx, dispatch.ReadConfigurationRequest{
		WorkspaceFolder:     workspace,
		ConfigPath:          cmd.Options.ConfigPath,
		IncludeFeatureMerge: cmd.Options.IncludeFeatureMerge,
		Strict:              cmd.Options.Strict,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc read-configuration:", err)
		return cli.ExitInvalidConfig
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc read-configuration:", err)
		return cli.ExitError
	}
	fmt.Println(string(data))
	return cli.ExitNormal
}

func runDoctor(ctx context.Context, cmd *cli.Command, d *dispatch.Dispatcher, workspace string) cli.ExitCode {
	report, err := d.Doctor(ctx, workspace)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc doctor:", err)
		return cli.ExitError
	}

	var rendered string
	switch {
	case cmd.Options.JSON:
		rendered, err = report.RenderJSON()
	default:
		rendered = report.RenderText()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "devc doctor:", err)
		return cli.ExitError
	}
	fmt.Println(rendered)

	for _, c := range report.Checks {
		if !c.OK {
			return cli.ExitError
		}
	}
	return cli.ExitNormal
}
