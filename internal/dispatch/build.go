package dispatch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/feature"
	"github.com/nlsantos/devc/internal/lockfile"
	"github.com/nlsantos/devc/internal/runtime"
)

// ImageScanner is the external collaborator invoked after a successful
// build when BuildRequest.Scanner is set; spec.md §1 treats image scanning as
// outside the core, so BuildRequest only carries an optional hook.
type ImageScanner interface {
	ScanImage(ctx context.Context, imageTag string) error
}

// BuildRequest carries `devc build`'s inputs: resolve features,
// compose a build plan, invoke Runtime.Build, optionally write a
// lockfile and/or scan the resulting image.
type BuildRequest struct {
	WorkspaceFolder    string
	ConfigPath         string
	AdditionalFeatures map[string]config.FeatureOptions
	PreferCLIFeatures  bool
	Strict             bool

	WriteLockfile      bool
	ForceWriteLockfile bool

	Scanner  ImageScanner
	Output   io.Writer
}

// BuildResult is the outcome of a successful `build` invocation.
type BuildResult struct {
	ImageTag   string
	Plan       *feature.Plan
	LockPath   string
}

// Build loads+substitutes config, resolves features into a build
// plan, invokes the Runtime's build capability, and optionally writes
// a lockfile and/or hands the resulting image to an external scanner.
func (d *Dispatcher) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	resolved, err := LoadAndSubstitute(req.WorkspaceFolder, req.ConfigPath, nil, req.Strict)
	if err != nil {
		return nil, err
	}
	cfg := resolved.Config

	if cfg.DockerFile == "" && (cfg.Build == nil || cfg.Build.Dockerfile == "") {
		return nil, fmt.Errorf("dispatch: build requires dockerFile or build.dockerfile in devcontainer.json")
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
	imageTag := ImageTagPrefix + imageTagBase(contextDir)

	out := req.Output
	if out == nil {
		out = io.Discard
	}
	if err := d.Runtime.Build(ctx, runtime.BuildSpec{
		ContextDir: contextDir,
		Dockerfile: dockerfile,
		Tag:        imageTag,
		BuildArgs:  buildArgs,
		Target:     target,
	}, out); err != nil {
		return nil, fmt.Errorf("dispatch: building image: %w", err)
	}

	result := &BuildResult{ImageTag: imageTag, Plan: plan}

	if req.WriteLockfile {
		lockPath := lockfile.Path(resolved.ConfigPath)
		lf := &lockfile.Lockfile{Features: map[string]lockfile.Feature{}}
		for _, f := range plan.Features {
			lf.Features[f.ID] = lockfile.Feature{Version: "", Resolved: f.Path}
		}
		if err := lockfile.Write(lockPath, lf, req.ForceWriteLockfile); err != nil {
			return nil, fmt.Errorf("dispatch: writing lockfile: %w", err)
		}
		result.LockPath = lockPath
	}

	if req.Scanner != nil {
		if err := req.Scanner.ScanImage(ctx, imageTag); err != nil {
			return nil, fmt.Errorf("dispatch: scanning image: %w", err)
		}
	}

	return result, nil
}
