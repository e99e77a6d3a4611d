package dispatch

import (
	"context"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/feature"
)

// ReadConfigurationRequest is `read-configuration`'s input: load and
// substitute a devcontainer.json, optionally also resolving features
// so the effective, feature-merged configuration can be printed.
type ReadConfigurationRequest struct {
	WorkspaceFolder     string
	ConfigPath          string
	IncludeFeatureMerge bool
	Strict              bool
}

// ReadConfigurationResult is the printable outcome: the substituted
// config plus, when requested, the resolved feature plan that would
// contribute to it.
type ReadConfigurationResult struct {
	Config *config.DevContainerConfig
	Plan   *feature.Plan
}

// ReadConfiguration loads and substitutes a workspace's
// devcontainer.json and, when requested, resolves its declared
// features, without creating or touching any container.
func (d *Dispatcher) ReadConfiguration(ctx context.Context, req ReadConfigurationRequest) (*ReadConfigurationResult, error) {
	resolved, err := LoadAndSubstitute(req.WorkspaceFolder, req.ConfigPath, nil, req.Strict)
	if err != nil {
		return nil, err
	}

	result := &ReadConfigurationResult{Config: resolved.Config}
	if !req.IncludeFeatureMerge {
		return result, nil
	}

	plan, err := feature.Resolve(ctx, d.Resolver, feature.PlanOptions{
		ConfigFeatures:              resolved.Config.Features,
		OverrideFeatureInstallOrder: resolved.Config.OverrideFeatureInstallOrder,
		ContextDir:                  resolved.CanonicalWorkspaceFolder,
	})
	if err != nil {
		return nil, err
	}
	result.Plan = plan
	return result, nil
}
