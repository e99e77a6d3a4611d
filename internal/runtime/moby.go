package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/docker/go-connections/nat"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/filters"
	apimount "github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/api/types/network"
	mobyclient "github.com/moby/moby/client"
)

// MobyRuntime implements Runtime over the moby REST API, usable
// against both Docker and Podman sockets.
type MobyRuntime struct {
	cli *mobyclient.Client
}

// NewMobyRuntime dials socketAddr (resolved via discoverSocketAddr
// when empty) and returns a ready Runtime.
//
// Unlike the wrapper this is grounded on, the client is not closed
// before it's ever used: closing here would sever the connection for
// every method below, since they all share this one *mobyclient.Client.
func NewMobyRuntime(explicitSocket, runtimeKind string) (*MobyRuntime, error) {
	addr := discoverSocketAddr(explicitSocket, runtimeKind)
	cli, err := mobyclient.New(mobyclient.WithHost(addr))
	if err != nil {
		return nil, fmt.Errorf("runtime: connecting to %s: %w", addr, err)
	}
	return &MobyRuntime{cli: cli}, nil
}

// Close releases the underlying client connection.
func (m *MobyRuntime) Close() error {
	return m.cli.Close()
}

func stateFromStatus(status string) ContainerState {
	switch {
	case strings.HasPrefix(status, "running"), strings.HasPrefix(status, "Up"):
		return StateRunning
	case strings.HasPrefix(status, "exited"), strings.HasPrefix(status, "Exited"):
		return StateExited
	case strings.HasPrefix(status, "paused"), strings.HasPrefix(status, "Paused"):
		return StatePaused
	default:
		return StateCreated
	}
}

// InspectContainer resolves a single container's normalized state.
func (m *MobyRuntime) InspectContainer(ctx context.Context, id string) (*ContainerInfo, error) {
	resp, err := m.cli.ContainerInspect(ctx, id, mobyclient.ContainerInspectOptions{})
	if err != nil {
		if mobyclient.IsErrNotFound(err) {
			return nil, &ErrContainerNotFound{ID: id}
		}
		return nil, fmt.Errorf("runtime: inspecting %s: %w", id, err)
	}

	var names []string
	if resp.Name != "" {
		names = []string{strings.TrimPrefix(resp.Name, "/")}
	}
	info := &ContainerInfo{
		ID:     resp.ID,
		Names:  names,
		State:  stateFromStatus(resp.State.Status),
		Labels: map[string]string{},
	}
	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
	}
	return info, nil
}

// ListContainers returns every container (running or not) carrying
// every key/value pair in labelSelector.
func (m *MobyRuntime) ListContainers(ctx context.Context, labelSelector map[string]string) ([]ContainerInfo, error) {
	args := filters.NewArgs()
	for k, v := range labelSelector {
		args.Add("label", fmt.Sprintf("%s=%s", k, v))
	}

	summaries, err := m.cli.ContainerList(ctx, mobyclient.ContainerListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("runtime: listing containers: %w", err)
	}

	out := make([]ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		names := make([]string, 0, len(s.Names))
		for _, n := range s.Names {
			names = append(names, strings.TrimPrefix(n, "/"))
		}
		out = append(out, ContainerInfo{
			ID:     s.ID,
			Names:  names,
			Image:  s.Image,
			State:  stateFromStatus(s.State),
			Labels: s.Labels,
		})
	}
	return out, nil
}

func toMobyMounts(specs []MountSpec) []apimount.Mount {
	out := make([]apimount.Mount, 0, len(specs))
	for _, s := range specs {
		mt := apimount.Mount{
			Type:     apimount.Type(s.Type),
			Source:   s.Source,
			Target:   s.Target,
			ReadOnly: s.ReadOnly,
		}
		if s.Consistency != "" {
			mt.Consistency = apimount.Consistency(s.Consistency)
		}
		out = append(out, mt)
	}
	return out
}

// CreateContainer creates (but does not start) a container from spec,
// returning the new container's id.
func (m *MobyRuntime) CreateContainer(ctx context.Context, spec CreateSpec) (string, error) {
	name := spec.Name
	if name == "" {
		suffix, err := gonanoid.New(16)
		if err != nil {
			return "", fmt.Errorf("runtime: generating container name: %w", err)
		}
		name = "devc-" + suffix
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Entrypoint:   spec.Entrypoint,
		Cmd:          spec.Cmd,
		Env:          spec.Env,
		Labels:       spec.Labels,
		User:         spec.User,
		WorkingDir:   spec.WorkingDir,
		OpenStdin:    true,
		Tty:          true,
		ExposedPorts: make(network.PortSet),
	}

	hostCfg := &container.HostConfig{
		Mounts:       toMobyMounts(spec.Mounts),
		Privileged:   spec.Privileged,
		Init:         &spec.Init,
		CapAdd:       spec.CapAdd,
		SecurityOpt:  spec.SecurityOpt,
		PortBindings: make(network.PortMap),
	}

	ports := append(append([]string{}, spec.AppPorts...), spec.ForwardPorts...)
	if err := bindPorts(ports, cfg, hostCfg); err != nil {
		return "", fmt.Errorf("runtime: binding ports for %s: %w", name, err)
	}

	resp, err := m.cli.ContainerCreate(ctx, mobyclient.ContainerCreateOptions{
		Config:     cfg,
		HostConfig: hostCfg,
		Name:       name,
	})
	if err != nil {
		return "", fmt.Errorf("runtime: creating container %s: %w", name, err)
	}
	return resp.ID, nil
}

// bindPorts parses "hostPort:containerPort" / bare-port specs (the
// forwardPorts/appPort shapes dispatch's ports.go already normalized
// into strings) and fills in the container's exposed ports and host
// port bindings, grounded on trill's bindAppPorts/bindForwardPorts
// minus their privileged-port re-exec step (no host-elevation
// capability exists in this module; ports under 1024 simply fail to
// bind the way they would for any unprivileged process).
func bindPorts(ports []string, cfg *container.Config, hostCfg *container.HostConfig) error {
	if len(ports) == 0 {
		return nil
	}

	exposedPorts, portMap, err := nat.ParsePortSpecs(ports)
	if err != nil {
		return err
	}

	for port, set := range exposedPorts {
		cfg.ExposedPorts[network.MustParsePort(port.Port())] = set
	}

	for port, bindings := range portMap {
		var portBindings []network.PortBinding
		for _, binding := range bindings {
			hostIP := binding.HostIP
			if hostIP == "" {
				hostIP = "127.0.0.1"
			}
			addr, err := netip.ParseAddr(hostIP)
			if err != nil {
				return fmt.Errorf("parsing host IP %q: %w", hostIP, err)
			}
			portBindings = append(portBindings, network.PortBinding{
				HostIP:   addr,
				HostPort: binding.HostPort,
			})
		}
		hostCfg.PortBindings[network.MustParsePort(port.Port())] = portBindings
	}
	return nil
}

// StartContainer starts a previously created container.
func (m *MobyRuntime) StartContainer(ctx context.Context, id string) error {
	if _, err := m.cli.ContainerStart(ctx, id, mobyclient.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("runtime: starting %s: %w", id, err)
	}
	return nil
}

// StopContainer stops a running container.
func (m *MobyRuntime) StopContainer(ctx context.Context, id string) error {
	if _, err := m.cli.ContainerStop(ctx, id, mobyclient.ContainerStopOptions{}); err != nil {
		return fmt.Errorf("runtime: stopping %s: %w", id, err)
	}
	return nil
}

// RemoveContainer force-removes a container.
func (m *MobyRuntime) RemoveContainer(ctx context.Context, id string) error {
	if _, err := m.cli.ContainerRemove(ctx, id, mobyclient.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("runtime: removing %s: %w", id, err)
	}
	return nil
}

// Exec runs a command inside a running container, optionally attached
// to a TTY, and streams stdout/stderr to spec.Stdout/spec.Stderr as it
// arrives.
func (m *MobyRuntime) Exec(ctx context.Context, spec ExecSpec) (ExecResult, error) {
	createOpts := mobyclient.ExecCreateOptions{
		User:         spec.User,
		WorkingDir:   spec.WorkingDir,
		Env:          spec.Env,
		Cmd:          spec.Cmd,
		TTY:          spec.TTY,
		AttachStdin:  spec.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := m.cli.ExecCreate(ctx, spec.ContainerID, createOpts)
	if err != nil {
		return ExecResult{}, fmt.Errorf("runtime: creating exec in %s: %w", spec.ContainerID, err)
	}

	attached, err := m.cli.ExecAttach(ctx, created.ID, mobyclient.ExecAttachOptions{Tty: spec.TTY})
	if err != nil {
		return ExecResult{}, fmt.Errorf("runtime: attaching exec %s: %w", created.ID, err)
	}
	defer attached.Close()

	if spec.TTY && spec.TermWidth > 0 && spec.TermHeight > 0 {
		if _, err := m.cli.ExecResize(ctx, created.ID, mobyclient.ExecResizeOptions{
			Height: spec.TermHeight,
			Width:  spec.TermWidth,
		}); err != nil {
			slog.Warn("runtime: resizing exec pty failed", "error", err)
		}
	}

	done := make(chan error, 1)
	if spec.Stdin != nil {
		go func() {
			_, werr := io.Copy(attached.Conn, spec.Stdin)
			done <- werr
		}()
	}

	var copyErr error
	if spec.TTY {
		_, copyErr = io.Copy(spec.Stdout, attached.Reader)
	} else {
		_, copyErr = stdcopy.StdCopy(spec.Stdout, spec.Stderr, attached.Reader)
	}
	if copyErr != nil && copyErr != io.EOF {
		return ExecResult{}, fmt.Errorf("runtime: streaming exec %s output: %w", created.ID, copyErr)
	}

	inspect, err := m.cli.ExecInspect(ctx, created.ID, mobyclient.ExecInspectOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("runtime: inspecting exec %s: %w", created.ID, err)
	}
	return ExecResult{ExitCode: inspect.ExitCode}, nil
}

// Build runs an image build, streaming the JSON-lines build log to out.
func (m *MobyRuntime) Build(ctx context.Context, spec BuildSpec, out io.Writer) error {
	archivePath, err := buildContextArchive(spec.ContextDir)
	if err != nil {
		return fmt.Errorf("runtime: archiving build context %s: %w", spec.ContextDir, err)
	}
	defer removeArchive(archivePath)

	archive, err := openArchive(archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	buildOpts := mobyclient.ImageBuildOptions{
		Dockerfile: spec.Dockerfile,
		Tags:       []string{spec.Tag},
		BuildArgs:  toPtrMap(spec.BuildArgs),
		Target:     spec.Target,
		CacheFrom:  spec.CacheFrom,
		Remove:     true,
	}

	resp, err := m.cli.ImageBuild(ctx, archive, buildOpts)
	if err != nil {
		return fmt.Errorf("runtime: building %s: %w", spec.Tag, err)
	}
	defer resp.Body.Close()

	return decodeBuildStream(resp.Body, out)
}

// Pull fetches an image, streaming the pull progress to out.
func (m *MobyRuntime) Pull(ctx context.Context, image string, out io.Writer) error {
	resp, err := m.cli.ImagePull(ctx, image, mobyclient.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("runtime: pulling %s: %w", image, err)
	}
	defer resp.Close()

	_, err = io.Copy(out, resp)
	return err
}

func toPtrMap(m map[string]string) map[string]*string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		v := v
		out[k] = &v
	}
	return out
}
