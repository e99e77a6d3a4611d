package config

import (
	"encoding/json"
	"log/slog"
)

// Command is a lifecycle command in any of its four JSON forms:
// a plain string, a sequence of strings, an object of name to
// string-or-sequence, or null/absent.
type Command struct {
	raw json.RawMessage
}

// UnmarshalJSON stores the raw bytes; Flatten performs the form
// dispatch described in spec.md §4.9 lazily, since flattening needs a
// source tag the unmarshaller doesn't have.
func (c *Command) UnmarshalJSON(data []byte) error {
	c.raw = append(c.raw[:0], data...)
	return nil
}

// MarshalJSON round-trips the stored raw form.
func (c Command) MarshalJSON() ([]byte, error) {
	if c.raw == nil {
		return []byte("null"), nil
	}
	return c.raw, nil
}

// IsZero reports whether no command was set at all.
func (c Command) IsZero() bool {
	return len(c.raw) == 0 || string(c.raw) == "null"
}

// Flatten applies the flattening rules from spec.md §4.9: a non-empty
// string becomes one command; a sequence becomes each element in
// order (non-strings are an error); an object's values become, per
// key, the string itself or the space-joined sequence, skipping
// non-string/non-sequence values.
func (c Command) Flatten() ([]string, error) {
	if c.IsZero() {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(c.raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []string{asString}, nil
	}

	var asArray []any
	if err := json.Unmarshal(c.raw, &asArray); err == nil {
		out := make([]string, 0, len(asArray))
		for _, elem := range asArray {
			s, ok := elem.(string)
			if !ok {
				return nil, &FlattenError{Detail: "lifecycle command array element is not a string"}
			}
			out = append(out, s)
		}
		return out, nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(c.raw, &asObject); err == nil {
		keys := make([]string, 0, len(asObject))
		for k := range asObject {
			keys = append(keys, k)
		}
		sortStrings(keys)

		out := make([]string, 0, len(keys))
		for _, k := range keys {
			switch v := asObject[k].(type) {
			case string:
				if v != "" {
					out = append(out, v)
				}
			case []any:
				parts := make([]string, 0, len(v))
				for _, elem := range v {
					if s, ok := elem.(string); ok {
						parts = append(parts, s)
					}
				}
				if len(parts) > 0 {
					out = append(out, joinSpace(parts))
				}
			default:
				slog.Debug("config: skipping non-string/non-array lifecycle command value", "key", k)
			}
		}
		return out, nil
	}

	return nil, &FlattenError{Detail: "lifecycle command is neither string, array, nor object"}
}

// FlattenError reports a malformed lifecycle command value.
type FlattenError struct {
	Detail string
}

func (e *FlattenError) Error() string { return "config: " + e.Detail }

func joinSpace(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// FeatureOptions is a feature's option map, values are string, bool,
// or number, passed through verbatim to the feature resolver.
type FeatureOptions map[string]any

// HostRequirements describes the hardware a container asks the host
// to provide before it will start.
type HostRequirements struct {
	CPUs    json.Number `json:"cpus,omitempty"`
	Memory  string      `json:"memory,omitempty"`
	Storage string      `json:"storage,omitempty"`
	GPU     any         `json:"gpu,omitempty"`
}

// DevContainerConfig is the parsed, substituted form of a
// devcontainer.json file. Field coverage follows the subset of the
// schema that the core operations in spec.md §4 actually consume;
// unrecognized top-level fields survive in Extra so the merge step
// never silently drops user content.
type DevContainerConfig struct {
	Schema            string                    `json:"$schema,omitempty"`
	Name              string                    `json:"name,omitempty"`
	Image             string                    `json:"image,omitempty"`
	DockerFile        string                    `json:"dockerFile,omitempty"`
	Context           string                    `json:"context,omitempty"`
	Build             *BuildOptions             `json:"build,omitempty"`
	DockerComposeFile json.RawMessage           `json:"dockerComposeFile,omitempty"`
	Service           string                    `json:"service,omitempty"`
	RunServices       []string                  `json:"runServices,omitempty"`
	WorkspaceFolder   string                    `json:"workspaceFolder,omitempty"`
	WorkspaceMount    string                    `json:"workspaceMount,omitempty"`
	ContainerEnv      map[string]string         `json:"containerEnv,omitempty"`
	ContainerUser     string                    `json:"containerUser,omitempty"`
	RemoteEnv         map[string]string         `json:"remoteEnv,omitempty"`
	RemoteUser        string                    `json:"remoteUser,omitempty"`
	UpdateRemoteUserUID *bool                   `json:"updateRemoteUserUID,omitempty"`
	ForwardPorts      []json.RawMessage         `json:"forwardPorts,omitempty"`
	AppPort           json.RawMessage           `json:"appPort,omitempty"`
	PortsAttributes   map[string]any            `json:"portsAttributes,omitempty"`
	Mounts            []json.RawMessage         `json:"mounts,omitempty"`
	RunArgs           []string                  `json:"runArgs,omitempty"`
	CapAdd            []string                  `json:"capAdd,omitempty"`
	SecurityOpt       []string                  `json:"securityOpt,omitempty"`
	Privileged        *bool                     `json:"privileged,omitempty"`
	Init              *bool                     `json:"init,omitempty"`
	OverrideCommand   *bool                     `json:"overrideCommand,omitempty"`
	ShutdownAction    string                    `json:"shutdownAction,omitempty"`
	UserEnvProbe      string                    `json:"userEnvProbe,omitempty"`
	WaitFor           string                    `json:"waitFor,omitempty"`
	HostRequirements  *HostRequirements         `json:"hostRequirements,omitempty"`

	Features                    map[string]FeatureOptions `json:"features,omitempty"`
	OverrideFeatureInstallOrder []string                  `json:"overrideFeatureInstallOrder,omitempty"`

	InitializeCommand    Command `json:"initializeCommand,omitempty"`
	OnCreateCommand      Command `json:"onCreateCommand,omitempty"`
	UpdateContentCommand Command `json:"updateContentCommand,omitempty"`
	PostCreateCommand    Command `json:"postCreateCommand,omitempty"`
	PostStartCommand     Command `json:"postStartCommand,omitempty"`
	PostAttachCommand    Command `json:"postAttachCommand,omitempty"`

	Customizations map[string]any `json:"customizations,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// BuildOptions mirrors devcontainer.json's "build" object.
type BuildOptions struct {
	Context    string            `json:"context,omitempty"`
	Dockerfile string            `json:"dockerfile,omitempty"`
	Args       map[string]string `json:"args,omitempty"`
	CacheFrom  json.RawMessage   `json:"cacheFrom,omitempty"`
	Options    []string          `json:"options,omitempty"`
	Target     string            `json:"target,omitempty"`
}
