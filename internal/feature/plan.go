package feature

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nlsantos/devc/internal/config"
	"github.com/nlsantos/devc/internal/mount"
)

// ResolvedFeature is a single entry in the resolved install plan: a
// feature's cached path, merged options, and the lifecycle commands
// and container modifications it contributes.
type ResolvedFeature struct {
	ID           string                `json:"id"`
	Path         string                `json:"path"`
	Options      config.FeatureOptions `json:"options,omitempty"`
	ContainerEnv map[string]string     `json:"containerEnv,omitempty"`
	Mounts       []mount.Mount         `json:"mounts,omitempty"`
	CapAdd       []string              `json:"capAdd,omitempty"`
	SecurityOpt  []string              `json:"securityOpt,omitempty"`
	Privileged   bool                  `json:"privileged,omitempty"`
	Init         bool                  `json:"init,omitempty"`

	OnCreateCommand      []string `json:"onCreateCommand,omitempty"`
	UpdateContentCommand []string `json:"updateContentCommand,omitempty"`
	PostCreateCommand    []string `json:"postCreateCommand,omitempty"`
	PostStartCommand     []string `json:"postStartCommand,omitempty"`
	PostAttachCommand    []string `json:"postAttachCommand,omitempty"`
}

// Plan is the full resolved feature-install plan, in install order.
type Plan struct {
	Features []ResolvedFeature `json:"features"`
}

// PlanOptions configures plan resolution: the config's declared
// features plus any CLI-supplied additional features, and the
// precedence/override knobs spec.md §4.8 names.
type PlanOptions struct {
	ConfigFeatures          map[string]config.FeatureOptions
	AdditionalFeatures      map[string]config.FeatureOptions
	PreferCLIFeatures       bool
	OverrideFeatureInstallOrder []string
	ContextDir              string
}

// Resolve fetches every requested feature (including transitive
// dependsOn references), computes install order, merges options, and
// returns the resolved plan.
func Resolve(ctx context.Context, resolver *Resolver, opts PlanOptions) (*Plan, error) {
	fetched := map[string]*Fetched{}
	var requested []Request

	var fetchAll func(id string, options config.FeatureOptions) error
	fetchAll = func(id string, options config.FeatureOptions) error {
		if _, done := fetched[id]; done {
			return nil
		}
		f, err := resolver.Fetch(ctx, id, opts.ContextDir)
		if err != nil {
			return fmt.Errorf("feature: resolving %s: %w", id, err)
		}
		fetched[id] = f
		requested = append(requested, Request{ID: id, Options: options})

		for dep := range f.Metadata.DependsOn {
			if err := fetchAll(dep, nil); err != nil {
				return err
			}
		}
		return nil
	}

	for id, options := range opts.ConfigFeatures {
		if err := fetchAll(id, options); err != nil {
			return nil, err
		}
	}
	for id, options := range opts.AdditionalFeatures {
		if _, already := fetched[id]; already {
			if opts.PreferCLIFeatures {
				for i := range requested {
					if requested[i].ID == id {
						requested[i].Options = MergeOptions(nil, requested[i].Options, options, true)
					}
				}
			}
			continue
		}
		if err := fetchAll(id, options); err != nil {
			return nil, err
		}
	}

	metadata := map[string]*Metadata{}
	for id, f := range fetched {
		metadata[id] = f.Metadata
	}

	order, err := Order(requested, metadata, opts.OverrideFeatureInstallOrder)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Features: make([]ResolvedFeature, 0, len(order))}
	for _, id := range order {
		f := fetched[findRequest(requested, id)]
		if f == nil {
			continue
		}
		resolved, err := resolveFeature(f, requested)
		if err != nil {
			return nil, err
		}
		plan.Features = append(plan.Features, *resolved)
	}
	return plan, nil
}

// findRequest maps a vertex id (post dependsOn/tag normalization)
// back to the original request key fetched carries data under.
func findRequest(requested []Request, vertex string) string {
	for _, r := range requested {
		if vertexID(r.ID) == vertex {
			return r.ID
		}
	}
	return vertex
}

func resolveFeature(f *Fetched, requested []Request) (*ResolvedFeature, error) {
	var configured config.FeatureOptions
	for _, r := range requested {
		if r.ID == f.Reference {
			configured = r.Options
			break
		}
	}

	options := MergeOptions(f.Metadata.Options, configured, nil, false)

	mounts := make([]mount.Mount, 0, len(f.Metadata.Mounts))
	for _, spec := range f.Metadata.Mounts {
		m, _, err := mount.ParseMount(spec)
		if err != nil {
			return nil, fmt.Errorf("feature: %s: parsing mount %q: %w", f.Reference, spec, err)
		}
		mounts = append(mounts, m)
	}

	onCreate, err := flattenRaw(f.Metadata.OnCreateCommand)
	if err != nil {
		return nil, err
	}
	updateContent, err := flattenRaw(f.Metadata.UpdateContentCommand)
	if err != nil {
		return nil, err
	}
	postCreate, err := flattenRaw(f.Metadata.PostCreateCommand)
	if err != nil {
		return nil, err
	}
	postStart, err := flattenRaw(f.Metadata.PostStartCommand)
	if err != nil {
		return nil, err
	}
	postAttach, err := flattenRaw(f.Metadata.PostAttachCommand)
	if err != nil {
		return nil, err
	}

	return &ResolvedFeature{
		ID:                   f.Reference,
		Path:                 f.Path,
		Options:              options,
		ContainerEnv:         f.Metadata.ContainerEnv,
		Mounts:               mounts,
		CapAdd:               f.Metadata.CapAdd,
		SecurityOpt:          f.Metadata.SecurityOpt,
		Privileged:           boolValue(f.Metadata.Privileged),
		Init:                 boolValue(f.Metadata.Init),
		OnCreateCommand:      onCreate,
		UpdateContentCommand: updateContent,
		PostCreateCommand:    postCreate,
		PostStartCommand:     postStart,
		PostAttachCommand:    postAttach,
	}, nil
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

// flattenRaw applies the same string/array/object flattening rules as
// config.Command to a feature metadata lifecycle-command field.
func flattenRaw(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var cmd config.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, err
	}
	return cmd.Flatten()
}
