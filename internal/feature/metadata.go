// Package feature fetches devcontainer "features" from OCI registries,
// resolves their install order by dependsOn/installsAfter, merges
// option values, and produces the resolved install plan the lifecycle
// orchestrator's feature-command aggregation consumes.
package feature

import "encoding/json"

// Metadata is the parsed shape of a devcontainer-feature.json: known
// fields the resolver and lifecycle orchestrator consume, plus Extra
// for schema-open fields that must survive a publish round-trip.
type Metadata struct {
	ID                   string                    `json:"id"`
	Version              string                    `json:"version"`
	Name                 string                    `json:"name,omitempty"`
	Description          string                    `json:"description,omitempty"`
	Options              map[string]Option         `json:"options,omitempty"`
	InstallsAfter        []string                  `json:"installsAfter,omitempty"`
	DependsOn            map[string]json.RawMessage `json:"dependsOn,omitempty"`
	ContainerEnv         map[string]string         `json:"containerEnv,omitempty"`
	Mounts               []string                  `json:"-"`
	MountsRaw            []json.RawMessage         `json:"mounts,omitempty"`
	CapAdd               []string                  `json:"capAdd,omitempty"`
	SecurityOpt          []string                  `json:"securityOpt,omitempty"`
	Privileged           *bool                     `json:"privileged,omitempty"`
	Init                 *bool                     `json:"init,omitempty"`
	OnCreateCommand      json.RawMessage           `json:"onCreateCommand,omitempty"`
	UpdateContentCommand json.RawMessage           `json:"updateContentCommand,omitempty"`
	PostCreateCommand    json.RawMessage           `json:"postCreateCommand,omitempty"`
	PostStartCommand     json.RawMessage           `json:"postStartCommand,omitempty"`
	PostAttachCommand    json.RawMessage           `json:"postAttachCommand,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Option describes a single feature-configurable option.
type Option struct {
	Type        string   `json:"type"`
	Default     any      `json:"default"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Proposals   []string `json:"proposals,omitempty"`
}

var knownMetadataKeys = map[string]struct{}{
	"id": {}, "version": {}, "name": {}, "description": {}, "options": {},
	"installsAfter": {}, "dependsOn": {}, "containerEnv": {}, "mounts": {},
	"capAdd": {}, "securityOpt": {}, "privileged": {}, "init": {},
	"onCreateCommand": {}, "updateContentCommand": {}, "postCreateCommand": {},
	"postStartCommand": {}, "postAttachCommand": {},
}

// ParseMetadata parses a devcontainer-feature.json document, keeping
// everything the schema doesn't name in Extra so a later publish step
// round-trips the original document faithfully.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for _, raw := range m.MountsRaw {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			m.Mounts = append(m.Mounts, s)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err == nil {
			m.Mounts = append(m.Mounts, mountObjectToString(obj))
		}
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range generic {
		if _, known := knownMetadataKeys[k]; !known {
			extra[k] = v
		}
	}
	m.Extra = extra
	return &m, nil
}

func mountObjectToString(obj map[string]any) string {
	parts := ""
	for _, key := range []string{"type", "source", "target"} {
		if v, ok := obj[key].(string); ok && v != "" {
			if parts != "" {
				parts += ","
			}
			parts += key + "=" + v
		}
	}
	return parts
}
