// Package cli implements devc's command-line surface: option parsing,
// rc-file discovery, version banner, and logging initialization
// (devcontainer.json discovery lives in internal/config.Locate). It is the external-collaborator layer spec.md §1
// excludes from the core; internal/dispatch is what actually carries
// out a parsed command.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/golang-cz/devslog"
	"github.com/pborman/options"
)

// VersionText is printed by --version.
var VersionText = heredoc.Doc(`
    %s, version %s
    A native Go CLI for devcontainer.json workspaces

    This is free software; you are free to change and redistribute it.
    There is NO WARRANTY, to the extent permitted by law.
`)

// ExitCode mirrors the process exit codes devc returns.
type ExitCode int

const (
	ExitNormal ExitCode = iota
	ExitError
	ExitInvalidConfig
	ExitNoRuntimeSocket
	ExitErrorParsingFlags
	ExitNoDevcontainerJSON
	ExitUnsupportedConfiguration
)

// Options is every flag every subcommand accepts; subcommands ignore
// the flags that don't apply to them, the same single-struct approach
// the teacher's Command.Options uses.
type Options struct {
	Help    options.Help  `getopt:"-h --help display this help message"`
	Config  options.Flags `getopt:"-c --config=PATH path to rc file"`
	Debug   bool          `getopt:"-d --debug enable debug messages (implies -v)"`
	Verbose bool          `getopt:"-v --verbose enable diagnostic messages"`
	Version bool          `getopt:"--version display version information then exit"`

	Socket          string `getopt:"-s --socket=ADDR URI to the Podman/Docker socket"`
	WorkspaceFolder string `getopt:"-w --workspace-folder=PATH workspace folder containing devcontainer.json"`
	ConfigPath      string `getopt:"--config-path=PATH explicit path to devcontainer.json"`
	JSON            bool   `getopt:"--json emit machine-readable JSON output instead of styled text"`

	Prebuild                      bool `getopt:"--prebuild run only initialize/onCreate/updateContent, skipping postCreate/dotfiles/postStart/postAttach"`
	SkipPostCreate                bool `getopt:"--skip-post-create skip postCreate, dotfiles, postStart, and postAttach"`
	SkipPostAttach                bool `getopt:"--skip-post-attach skip postAttach regardless of resume mode"`
	RemoveExisting                bool `getopt:"--remove-existing-container remove and recreate an existing matching container"`
	IgnoreHostRequirementsFailure bool `getopt:"--ignore-host-requirements-failure continue even when hostRequirements aren't met"`
	FrozenLockfile                bool `getopt:"--frozen-lockfile fail up if resolved features don't match the lockfile"`
	WriteLockfile                 bool `getopt:"--lockfile write a devcontainer-lock.json after a successful build"`
	ForceLockfile                 bool `getopt:"--force-lockfile overwrite an existing lockfile"`
	PreferCLIFeatures             bool `getopt:"--prefer-cli-features let CLI-supplied additional features win over devcontainer.json on id collision"`
	Strict                        bool `getopt:"--strict fail if any variable is left unknown or unresolved after substitution"`

	User       string   `getopt:"-u --user=NAME run exec as this remote user"`
	ExecWorkdir string  `getopt:"--exec-workdir=PATH working directory for exec"`
	Env        []string `getopt:"-e --env=KEY=VALUE set an environment variable for exec (repeatable)"`
	NoTTY      bool     `getopt:"--no-tty disable PTY allocation for exec"`
	ForceTTY   bool     `getopt:"--force-tty force PTY allocation for exec even without a real terminal"`

	IncludeFeatureMerge bool `getopt:"--include-merged-configuration include feature-contributed fields in read-configuration output"`
}

// Command holds the parsed arguments and housekeeping state for one
// devc invocation.
type Command struct {
	Arguments      []string
	Options        Options
	suppressOutput bool
}

// NewCommand parses os.Args via pborman/getopt (through pborman/options'
// struct-tag registration), initializes the default slog logger, and
// returns the resulting Command. Like the teacher, --version and flag
// parsing errors exit the process directly rather than returning an
// error, since nothing downstream can recover from them.
func NewCommand(appName, appVersion string) *Command {
	var cmd Command
	cmd.parseOptions(appName, appVersion)
	slog.Debug("command line options parsed", "opts", cmd.Options)
	slog.Debug("command line arguments", "args", cmd.Arguments)
	return &cmd
}

// Subcommand returns the first positional argument: up, build, exec,
// down, read-configuration, or doctor.
func (c *Command) Subcommand() string {
	if len(c.Arguments) == 0 {
		return ""
	}
	return c.Arguments[0]
}

// PositionalArgs returns the arguments after the subcommand name (e.g.
// exec's command-and-arguments to run in the container).
func (c *Command) PositionalArgs() []string {
	if len(c.Arguments) <= 1 {
		return nil
	}
	return c.Arguments[1:]
}

// Workspace resolves the target workspace folder: the --workspace-folder
// flag if set, else the current working directory.
func (c *Command) Workspace() (string, error) {
	if c.Options.WorkspaceFolder != "" {
		return c.Options.WorkspaceFolder, nil
	}
	return os.Getwd()
}

func (c *Command) parseOptions(appName, appVersion string) {
	options.SetDisplayWidth(80)
	options.SetHelpColumn(40)
	options.SetParameters("<up|build|exec|down|read-configuration|doctor> [args...]")
	options.Register(&c.Options)
	c.setFlagsFile(appName)
	c.Arguments = options.Parse()

	if c.Options.Version {
		fmt.Printf(VersionText, appName, appVersion)
		os.Exit(int(ExitNormal))
	}

	logLevel := new(slog.LevelVar)
	switch {
	case c.Options.Debug:
		logLevel.Set(slog.LevelDebug)
	case c.Options.Verbose:
		logLevel.Set(slog.LevelInfo)
	default:
		logLevel.Set(slog.LevelError)
	}

	slog.SetDefault(slog.New(devslog.NewHandler(os.Stderr, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			AddSource: true,
			Level:     logLevel,
		},
		NewLineAfterLog:   false,
		SortKeys:          true,
		StringIndentation: true,
	})))

	c.suppressOutput = logLevel.Level() > slog.LevelInfo
}

// setFlagsFile looks for a devc rc file (".devcrc" under the Windows
// profile dir, XDG config dir, "~/.config", or the home dir directly,
// in that order) and, for every one that exists, registers it with
// pborman/options as an additional source of flag defaults. Later hits
// in the list are parsed after earlier ones, so a "~/.devcrc" overrides
// values already set from "~/.config/devcrc" for the same run.
func (c *Command) setFlagsFile(appName string) {
	rcPaths := []string{
		os.ExpandEnv(fmt.Sprintf("${USERPROFILE}/.%src", appName)),
		os.ExpandEnv(fmt.Sprintf("${XDG_CONFIG_HOME}/%src", appName)),
		os.ExpandEnv(fmt.Sprintf("${HOME}/.config/%src", appName)),
		os.ExpandEnv(fmt.Sprintf("${HOME}/.%src", appName)),
	}
	for _, path := range rcPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			slog.Debug("devc: rc file candidate not found", "path", path)
			continue
		}
		if err := c.Options.Config.Set(fmt.Sprintf("?%s", path), nil); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(int(ExitErrorParsingFlags))
		}
		slog.Debug("devc: loaded rc file", "path", path)
	}
}

// SuppressOutput reports whether build/pull progress streams should
// be discarded rather than written to stderr, derived from the
// resolved log level.
func (c *Command) SuppressOutput() bool {
	return c.suppressOutput
}

// EnvMap parses --env KEY=VALUE flags (repeatable) into a map,
// declaration order determining which value wins on a repeated key.
func (c *Command) EnvMap() map[string]string {
	out := map[string]string{}
	for _, kv := range c.Options.Env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
