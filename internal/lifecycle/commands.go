package lifecycle

import (
	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/feature"
	"github.com/nlsantos/devc/internal/progress"
)

// SourceKind distinguishes a command contributed by a feature from
// one contributed by devcontainer.json itself.
type SourceKind string

const (
	SourceFeature SourceKind = "feature"
	SourceConfig  SourceKind = "config"
)

// Source tags an aggregated command with where it came from, for
// progress events, debug logs, and error attribution.
type Source struct {
	Kind      SourceKind
	FeatureID string
}

// Command is one lifecycle command ready to run, with the source it
// was aggregated from.
type Command struct {
	Source Source
	Value  string
}

// AggregateCommands collects a phase's commands in spec order: each
// resolved feature's contribution (in install order), then the
// config's own command. Neither the config nor a feature carries a
// dotfiles command field, so the dotfiles phase aggregates to none.
func AggregateCommands(phase progress.Phase, plan *feature.Plan, cfg *config.DevContainerConfig) ([]Command, error) {
	var out []Command

	if plan != nil {
		for _, f := range plan.Features {
			for _, cmd := range featureCommands(phase, f) {
				out = append(out, Command{Source: Source{Kind: SourceFeature, FeatureID: f.ID}, Value: cmd})
			}
		}
	}

	if cfg != nil {
		flattened, err := configCommand(phase, cfg).Flatten()
		if err != nil {
			return nil, err
		}
		for _, cmd := range flattened {
			out = append(out, Command{Source: Source{Kind: SourceConfig}, Value: cmd})
		}
	}

	return out, nil
}

func featureCommands(phase progress.Phase, f feature.ResolvedFeature) []string {
	switch phase {
	case progress.PhaseOnCreate:
		return f.OnCreateCommand
	case progress.PhaseUpdateContent:
		return f.UpdateContentCommand
	case progress.PhasePostCreate:
		return f.PostCreateCommand
	case progress.PhasePostStart:
		return f.PostStartCommand
	case progress.PhasePostAttach:
		return f.PostAttachCommand
	default: // dotfiles: no feature metadata field, nothing to contribute yet
		return nil
	}
}

func configCommand(phase progress.Phase, cfg *config.DevContainerConfig) config.Command {
	switch phase {
	case progress.PhaseOnCreate:
		return cfg.OnCreateCommand
	case progress.PhaseUpdateContent:
		return cfg.UpdateContentCommand
	case progress.PhasePostCreate:
		return cfg.PostCreateCommand
	case progress.PhasePostStart:
		return cfg.PostStartCommand
	case progress.PhasePostAttach:
		return cfg.PostAttachCommand
	default: // dotfiles has no devcontainer.json field
		return config.Command{}
	}
}
