// Package runtime defines the capability interface the dispatch core
// and lifecycle orchestrator use to talk to a container engine, and
// provides a Docker/Podman-compatible implementation over the moby
// client.
package runtime

import (
	"context"
	"io"
)

// ContainerState mirrors the subset of container lifecycle state the
// core cares about.
type ContainerState string

const (
	StateRunning ContainerState = "running"
	StateExited  ContainerState = "exited"
	StateCreated ContainerState = "created"
	StatePaused  ContainerState = "paused"
)

// ContainerInfo is the normalized shape returned by InspectContainer
// and ListContainers.
type ContainerInfo struct {
	ID     string
	Names  []string
	Image  string
	State  ContainerState
	Labels map[string]string
}

// CreateSpec describes a container to create, expressed in the
// domain's own terms (mounts, env, labels) rather than moby's wire
// types, so callers outside this package never import the moby SDK
// directly.
type CreateSpec struct {
	Image        string
	Name         string
	Entrypoint   []string
	Cmd          []string
	Env          []string
	Labels       map[string]string
	Mounts       []MountSpec
	User         string
	WorkingDir   string
	Privileged   bool
	Init         bool
	CapAdd       []string
	SecurityOpt  []string
	RunArgs      []string
	AppPorts     []string
	ForwardPorts []string
}

// MountSpec is the runtime-facing mount shape; internal/mount.Mount
// values are converted to this at the dispatch boundary.
type MountSpec struct {
	Type        string
	Source      string
	Target      string
	ReadOnly    bool
	Consistency string
}

// BuildSpec describes an image build request.
type BuildSpec struct {
	ContextDir string
	Dockerfile string
	Tag        string
	BuildArgs  map[string]string
	Target     string
	CacheFrom  []string
}

// ExecSpec describes a command to run inside a running container.
type ExecSpec struct {
	ContainerID string
	User        string
	WorkingDir  string
	Env         []string
	Cmd         []string
	TTY         bool
	TermWidth   uint
	TermHeight  uint
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

// ExecResult carries the exit code of a finished exec invocation.
type ExecResult struct {
	ExitCode int
}

// Runtime is the capability interface the core consumes; it is
// deliberately narrow; anything not listed here is an external
// collaborator concern (e.g. image scanning) per spec.md §1.
type Runtime interface {
	InspectContainer(ctx context.Context, id string) (*ContainerInfo, error)
	ListContainers(ctx context.Context, labelSelector map[string]string) ([]ContainerInfo, error)
	CreateContainer(ctx context.Context, spec CreateSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	Exec(ctx context.Context, spec ExecSpec) (ExecResult, error)
	Build(ctx context.Context, spec BuildSpec, out io.Writer) error
	Pull(ctx context.Context, image string, out io.Writer) error
	ComposeUp(ctx context.Context, projectName string, composeFiles []string, services []string) error
	ComposeDown(ctx context.Context, projectName string, composeFiles []string) error
}

// ErrAmbiguousSelection is returned when a label-based lookup matches
// more than one container for an operation that requires a
// single target (e.g. exec).
type ErrAmbiguousSelection struct {
	Matches []ContainerInfo
}

func (e *ErrAmbiguousSelection) Error() string {
	msg := "runtime: ambiguous container selection, matches:"
	for _, m := range e.Matches {
		msg += " " + m.ID
		if len(m.Names) > 0 {
			msg += "(" + m.Names[0] + ")"
		}
	}
	return msg
}

// ErrContainerNotFound reports that a container lookup, by id or by
// label filter, found nothing.
type ErrContainerNotFound struct {
	ID string
}

func (e *ErrContainerNotFound) Error() string {
	return "runtime: container not found: " + e.ID
}
