package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/feature"
	"github.com/nlsantos/devc/internal/identity"
	"github.com/nlsantos/devc/internal/lifecycle"
	"github.com/nlsantos/devc/internal/lockfile"
	"github.com/nlsantos/devc/internal/progress"
	"github.com/nlsantos/devc/internal/runtime"
)

// UpRequest carries everything `devc up` needs beyond the
// devcontainer.json itself.
type UpRequest struct {
	WorkspaceFolder    string
	ConfigPath         string
	IDLabels           map[string]string
	AdditionalFeatures map[string]config.FeatureOptions
	PreferCLIFeatures  bool
	FrozenLockfile     bool
	Strict             bool

	IgnoreHostRequirementsFailure bool
	RemoveExisting                bool

	Prebuild       bool
	SkipPostCreate bool
	SkipPostAttach bool

	BuildOutput io.Writer
}

// UpResult is the outcome of a successful `up` invocation.
type UpResult struct {
	ContainerID string
	ImageTag    string
	Summary     progress.Summary
	Warnings    []string
}

// Up loads and substitutes a workspace's devcontainer.json, resolves
// its features, creates or reuses the target container, runs
// initialize on the host, drives the container lifecycle through an
// Orchestrator, and returns the rendered summary.
func (d *Dispatcher) Up(ctx context.Context, req UpRequest) (*UpResult, error) {
	resolved, err := LoadAndSubstitute(req.WorkspaceFolder, req.ConfigPath, req.IDLabels, req.Strict)
	if err != nil {
		return nil, err
	}
	cfg := resolved.Config

	if _, err := config.ValidateHostRequirements(cfg.HostRequirements, measureHost(resolved.CanonicalWorkspaceFolder), req.IgnoreHostRequirementsFailure); err != nil {
		return nil, err
	}

	contextDir := resolved.CanonicalWorkspaceFolder
	if cfg.Build != nil && cfg.Build.Context != "" {
		contextDir = filepath.Join(resolved.CanonicalWorkspaceFolder, cfg.Build.Context)
	} else if cfg.Context != "" {
		contextDir = filepath.Join(resolved.CanonicalWorkspaceFolder, cfg.Context)
	}

	plan, err := feature.Resolve(ctx, d.Resolver, feature.PlanOptions{
		ConfigFeatures:              cfg.Features,
		AdditionalFeatures:          req.AdditionalFeatures,
		PreferCLIFeatures:           req.PreferCLIFeatures,
		OverrideFeatureInstallOrder: cfg.OverrideFeatureInstallOrder,
		ContextDir:                  contextDir,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: resolving features: %w", err)
	}

	if req.FrozenLockfile {
		lockPath := lockfile.Path(resolved.ConfigPath)
		lf, err := lockfile.Read(lockPath)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(plan.Features))
		for i, f := range plan.Features {
			ids[i] = f.ID
		}
		result := lockfile.ValidateAgainstConfig(lf, ids, lockPath)
		if !result.Matched {
			return nil, fmt.Errorf("dispatch: %s", result.FormatError())
		}
	}

	mounts, mountWarnings, err := resolveMounts(cfg, plan)
	if err != nil {
		return nil, fmt.Errorf("dispatch: resolving mounts: %w", err)
	}

	labels := identity.Labels(resolved.WorkspaceHash, resolved.ConfigHash, cfg.Name)
	selector := identity.Selector(resolved.WorkspaceHash, resolved.ConfigHash)
	slog.Debug("dispatch: up resolving container", "selector", selector)

	containerID, imageTag, err := d.ensureContainer(ctx, req, resolved, plan, mounts, labels)
	if err != nil {
		return nil, err
	}

	orchestrator := lifecycle.New(d.Runtime, d.Emitter, d.Redactor)
	summary, err := orchestrator.Run(ctx, lifecycle.RunOptions{
		Config:                   cfg,
		Plan:                     plan,
		ContainerID:              containerID,
		WorkspaceRoot:            resolved.CanonicalWorkspaceFolder,
		LocalWorkspaceFolder:     resolved.CanonicalWorkspaceFolder,
		ContainerWorkspaceFolder: resolved.ContainerWorkspaceFolder,
		DevcontainerID:           resolved.DevcontainerID,
		Prebuild:                 req.Prebuild,
		SkipPostCreate:           req.SkipPostCreate,
		SkipPostAttach:           req.SkipPostAttach,
	})
	if err != nil {
		return nil, err
	}

	warnings := make([]string, 0, len(mountWarnings))
	for _, w := range mountWarnings {
		warnings = append(warnings, w.String())
	}

	return &UpResult{ContainerID: containerID, ImageTag: imageTag, Summary: summary, Warnings: warnings}, nil
}

// ensureContainer discovers a previously created container matching
// this workspace/config pair, reusing it unless RemoveExisting is
// set; otherwise it builds or pulls the configured image and creates
// a fresh container.
func (d *Dispatcher) ensureContainer(ctx context.Context, req UpRequest, resolved *ResolvedConfig, plan *feature.Plan, mounts []runtime.MountSpec, labels map[string]string) (containerID, imageTag string, err error) {
	cfg := resolved.Config

	existing, err := d.Runtime.ListContainers(ctx, labels)
	if err != nil {
		return "", "", fmt.Errorf("dispatch: listing containers: %w", err)
	}
	if len(existing) > 0 && !req.RemoveExisting {
		info := existing[0]
		if info.State != runtime.StateRunning {
			if err := d.Runtime.StartContainer(ctx, info.ID); err != nil {
				return "", "", fmt.Errorf("dispatch: starting existing container: %w", err)
			}
		}
		return info.ID, info.Image, nil
	}
	for _, info := range existing {
		if err := d.Runtime.RemoveContainer(ctx, info.ID); err != nil {
			slog.Warn("dispatch: failed removing stale container", "id", info.ID, "error", err)
		}
	}

	out := req.BuildOutput
	if out == nil {
		out = io.Discard
	}

	contextDir := resolved.CanonicalWorkspaceFolder
	switch {
	case cfg.Image != "":
		imageTag = cfg.Image
		if err := d.Runtime.Pull(ctx, imageTag, out); err != nil {
			return "", "", fmt.Errorf("dispatch: pulling %s: %w", imageTag, err)
		}
	case cfg.DockerFile != "" || (cfg.Build != nil && cfg.Build.Dockerfile != ""):
		if cfg.Build != nil && cfg.Build.Context != "" {
			contextDir = filepath.Join(resolved.CanonicalWorkspaceFolder, cfg.Build.Context)
		} else if cfg.Context != "" {
			contextDir = filepath.Join(resolved.CanonicalWorkspaceFolder, cfg.Context)
		}
		dockerfile := cfg.DockerFile
		var buildArgs map[string]string
		var target string
		if cfg.Build != nil {
			if cfg.Build.Dockerfile != "" {
				dockerfile = cfg.Build.Dockerfile
			}
			buildArgs = cfg.Build.Args
			target = cfg.Build.Target
		}
		imageTag = ImageTagPrefix + imageTagBase(contextDir)
		if err := d.Runtime.Build(ctx, runtime.BuildSpec{
			ContextDir: contextDir,
			Dockerfile: dockerfile,
			Tag:        imageTag,
			BuildArgs:  buildArgs,
			Target:     target,
		}, out); err != nil {
			return "", "", fmt.Errorf("dispatch: building image: %w", err)
		}
	default:
		return "", "", fmt.Errorf("dispatch: devcontainer.json specifies no image, dockerFile, or build; unsupported configuration")
	}

	containerUser := cfg.ContainerUser
	if containerUser == "" {
		containerUser = "root"
	}

	id, err := d.Runtime.CreateContainer(ctx, runtime.CreateSpec{
		Image:        imageTag,
		Name:         "devc-" + resolved.DevcontainerID,
		Env:          envSlice(cfg.ContainerEnv),
		Labels:       labels,
		Mounts:       mounts,
		User:         containerUser,
		WorkingDir:   resolved.ContainerWorkspaceFolder,
		Privileged:   boolValue(cfg.Privileged),
		Init:         boolValue(cfg.Init),
		CapAdd:       cfg.CapAdd,
		SecurityOpt:  cfg.SecurityOpt,
		RunArgs:      cfg.RunArgs,
		AppPorts:     appPort(cfg.AppPort),
		ForwardPorts: forwardPorts(cfg.ForwardPorts),
	})
	if err != nil {
		return "", "", fmt.Errorf("dispatch: creating container: %w", err)
	}
	if err := d.Runtime.StartContainer(ctx, id); err != nil {
		return "", "", fmt.Errorf("dispatch: starting container: %w", err)
	}
	return id, imageTag, nil
}
