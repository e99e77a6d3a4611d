package dispatch

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/identity"
	"github.com/nlsantos/devc/internal/substitute"
)

// ResolvedConfig is a devcontainer.json after variable substitution,
// tagged with the workspace/container identity values every operation
// downstream of config loading needs.
type ResolvedConfig struct {
	Config                   *config.DevContainerConfig
	ConfigPath               string
	CanonicalWorkspaceFolder string
	ContainerWorkspaceFolder string
	WorkspaceHash            string
	ConfigHash               string
	DevcontainerID           string
	Report                   *substitute.Report
}

// LoadAndSubstitute locates, parses, and substitutes a devcontainer.json
// for workspaceFolder, deriving the identity values (workspace/config
// hash, devcontainer id, effective container workspace folder) every
// dispatch operation needs. idLabels, when non-empty, override the
// workspace-path-only default devcontainer id derivation. When strict is
// true, any unknown or failed variable left after substitution fails the
// load with a config.ValidationError rather than silently passing
// through the unresolved token, per spec.md §4.3's strict mode.
func LoadAndSubstitute(workspaceFolder, explicitConfigPath string, idLabels map[string]string, strict bool) (*ResolvedConfig, error) {
	configPath, err := config.Locate(workspaceFolder, explicitConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(configPath)
	if err != nil {
		return nil, err
	}

	canonicalWorkspace, err := identity.CanonicalWorkspacePath(workspaceFolder)
	if err != nil {
		return nil, err
	}
	devcontainerID := identity.DevcontainerID(canonicalWorkspace, idLabels)

	containerWorkspaceFolder := cfg.WorkspaceFolder
	if containerWorkspaceFolder == "" {
		containerWorkspaceFolder = "/workspaces/" + filepath.Base(canonicalWorkspace)
	}

	substCtx := substitute.Context{
		LocalWorkspaceFolder:     canonicalWorkspace,
		DevcontainerID:           devcontainerID,
		ContainerWorkspaceFolder: containerWorkspaceFolder,
		ContainerEnv:             cfg.ContainerEnv,
	}

	substituted, report, err := substituteConfig(cfg, substCtx, strict)
	if err != nil {
		return nil, err
	}

	configHash, err := config.Hash(substituted)
	if err != nil {
		return nil, err
	}
	workspaceHash := identity.WorkspaceHash(canonicalWorkspace)

	return &ResolvedConfig{
		Config:                   substituted,
		ConfigPath:               configPath,
		CanonicalWorkspaceFolder: canonicalWorkspace,
		ContainerWorkspaceFolder: containerWorkspaceFolder,
		WorkspaceHash:            workspaceHash,
		ConfigHash:               configHash,
		DevcontainerID:           devcontainerID,
		Report:                   report,
	}, nil
}

// substituteConfig round-trips cfg through a generic JSON tree so
// internal/substitute.Resolve (which walks string/[]any/map[string]any
// shapes) can expand every string leaf, then unmarshals the result
// back into a DevContainerConfig. A strict-mode violation surfaces as a
// config.ValidationError, matching how every other semantic rejection
// in the load path is reported.
func substituteConfig(cfg *config.DevContainerConfig, ctx substitute.Context, strict bool) (*config.DevContainerConfig, *substitute.Report, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch: marshaling config for substitution: %w", err)
	}

	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, nil, fmt.Errorf("dispatch: decoding config for substitution: %w", err)
	}

	resolved, report, strictErr := substitute.Resolve(tree, ctx, substitute.DefaultMaxDepth, strict)
	if strictErr != nil {
		return nil, report, &config.ValidationError{Detail: strictErr.Error()}
	}

	out, err := json.Marshal(resolved)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch: marshaling substituted config: %w", err)
	}
	substituted := &config.DevContainerConfig{}
	if err := json.Unmarshal(out, substituted); err != nil {
		return nil, nil, fmt.Errorf("dispatch: decoding substituted config: %w", err)
	}
	return substituted, report, nil
}
