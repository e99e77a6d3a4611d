// Package config locates, parses, merges, and hashes devcontainer.json
// configuration, including host-requirements validation and
// KEY=VALUE secrets file loading.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"dario.cat/mergo"

	"github.com/nlsantos/devc/internal/jsonc"
	"github.com/nlsantos/devc/internal/schema"
	"github.com/nlsantos/devc/internal/substitute"
)

// NotFoundError reports that no devcontainer.json could be located.
type NotFoundError struct {
	TriedPaths []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config: no devcontainer.json found, tried: %s", strings.Join(e.TriedPaths, ", "))
}

// ParsingError wraps a JSON syntax or type error with the offending path.
type ParsingError struct {
	Path string
	Err  error
}

func (e *ParsingError) Error() string { return fmt.Sprintf("config: parsing %s: %v", e.Path, e.Err) }
func (e *ParsingError) Unwrap() error { return e.Err }

// ValidationError reports a semantic violation: a missing required
// field, a malformed value, or similar.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return "config: validation: " + e.Detail }

// Locate searches, in order, an explicit path (if given), then
// "<workspace>/.devcontainer/devcontainer.json", then
// "<workspace>/.devcontainer.json".
func Locate(workspace, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", &NotFoundError{TriedPaths: []string{explicit}}
		}
		return explicit, nil
	}

	candidates := []string{
		filepath.Join(workspace, ".devcontainer", "devcontainer.json"),
		filepath.Join(workspace, ".devcontainer.json"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", &NotFoundError{TriedPaths: candidates}
}

// Parse reads a devcontainer.json (JSONC) file into a DevContainerConfig.
func Parse(path string) (*DevContainerConfig, error) {
	standardized, err := jsonc.ReadStandardized(path)
	if err != nil {
		return nil, &ParsingError{Path: path, Err: err}
	}
	if err := schema.Validate(standardized); err != nil {
		return nil, &ValidationError{Detail: fmt.Sprintf("%s: %v", path, err)}
	}

	cfg := &DevContainerConfig{}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return nil, &ParsingError{Path: path, Err: err}
	}
	if err := populateExtra(cfg, standardized); err != nil {
		return nil, &ParsingError{Path: path, Err: err}
	}
	return cfg, nil
}

// knownTopLevelKeys lists every json tag DevContainerConfig declares,
// used to compute Extra (anything the schema doesn't name, preserved
// through merge but ignored by the core per spec.md §6).
var knownTopLevelKeys = topLevelJSONKeys(DevContainerConfig{})

func topLevelJSONKeys(v any) map[string]struct{} {
	out := map[string]struct{}{}
	t := reflect.TypeOf(v)
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			out[name] = struct{}{}
		}
	}
	return out
}

func populateExtra(cfg *DevContainerConfig, standardized []byte) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(standardized, &generic); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range generic {
		if _, known := knownTopLevelKeys[k]; !known {
			extra[k] = v
		}
	}
	cfg.Extra = extra
	return nil
}

// Merge overlays override on top of base per spec.md §4.4's merge
// rules: scalars and arrays are replaced wholesale by override when
// present; objects are merged recursively with override winning
// collisions; mounts (already a sequence) are replaced wholesale.
func Merge(base, override *DevContainerConfig) (*DevContainerConfig, error) {
	merged := *base
	if err := mergo.Merge(&merged, override, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, fmt.Errorf("config: merge: %w", err)
	}

	// mergo.WithAppendSlice concatenates slices; the contract instead
	// calls for outright replacement when override sets the field, so
	// slice-typed fields are special-cased here after the structural
	// merge handles everything else (maps, pointers, scalars).
	if len(override.Mounts) > 0 {
		merged.Mounts = override.Mounts
	}
	if len(override.RunArgs) > 0 {
		merged.RunArgs = override.RunArgs
	}
	if len(override.CapAdd) > 0 {
		merged.CapAdd = override.CapAdd
	}
	if len(override.SecurityOpt) > 0 {
		merged.SecurityOpt = override.SecurityOpt
	}
	if len(override.ForwardPorts) > 0 {
		merged.ForwardPorts = override.ForwardPorts
	}
	if len(override.RunServices) > 0 {
		merged.RunServices = override.RunServices
	}
	if len(override.OverrideFeatureInstallOrder) > 0 {
		merged.OverrideFeatureInstallOrder = override.OverrideFeatureInstallOrder
	}
	if len(override.DockerComposeFile) > 0 {
		merged.DockerComposeFile = override.DockerComposeFile
	}
	if len(override.AppPort) > 0 {
		merged.AppPort = override.AppPort
	}

	// Command wraps an unexported json.RawMessage field, which mergo's
	// reflection-based walk silently skips; override lifecycle commands
	// explicitly so a present override command always wins outright,
	// matching the "scalars — override replaces" rule.
	for _, pair := range []struct {
		dst *Command
		src Command
	}{
		{&merged.InitializeCommand, override.InitializeCommand},
		{&merged.OnCreateCommand, override.OnCreateCommand},
		{&merged.UpdateContentCommand, override.UpdateContentCommand},
		{&merged.PostCreateCommand, override.PostCreateCommand},
		{&merged.PostStartCommand, override.PostStartCommand},
		{&merged.PostAttachCommand, override.PostAttachCommand},
	} {
		if !pair.src.IsZero() {
			*pair.dst = pair.src
		}
	}

	for k, v := range override.Extra {
		if merged.Extra == nil {
			merged.Extra = map[string]json.RawMessage{}
		}
		merged.Extra[k] = v
	}

	return &merged, nil
}

// Hash computes the semantic config hash: canonicalize (recursively
// sort object keys), hash the serialization, take the first 8 hex
// chars.
func Hash(cfg *DevContainerConfig) (string, error) {
	canon, err := substitute.MarshalCanonicalJSON(cfg)
	if err != nil {
		return "", fmt.Errorf("config: hash: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:8], nil
}

// HostRequirementResult is the outcome of checking a single host
// requirement (cpus, memory, or storage) against the measured host.
type HostRequirementResult struct {
	Name      string
	Required  string
	Available string
	Satisfied bool
}

// HostMeasurement carries the host facts Validate compares
// requirements against; the caller measures these since they're
// platform-specific (logical CPU count, total memory, free disk for
// the workspace path).
type HostMeasurement struct {
	LogicalCPUs int64
	TotalMemory int64 // bytes
	FreeDisk    int64 // bytes
}

// unitMultipliers maps the suffixes spec.md §4.4 recognizes for
// memory/storage requirements to a byte multiplier.
var unitMultipliers = map[string]int64{
	"b":   1,
	"kb":  1000,
	"mb":  1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"kib": 1024,
	"mib": 1024 * 1024,
	"gib": 1024 * 1024 * 1024,
}

// ParseSizeWithUnit parses a numeric value with one of the unit
// suffixes {B, KB, MB, GB, KiB, MiB, GiB} into a byte count.
func ParseSizeWithUnit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"kib", "mib", "gib", "kb", "mb", "gb", "b"} {
		if strings.HasSuffix(strings.ToLower(s), suffix) {
			numPart := strings.TrimSpace(s[:len(s)-len(suffix)])
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("config: invalid size %q: %w", s, err)
			}
			return int64(n * float64(unitMultipliers[suffix])), nil
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// ValidateHostRequirements checks cpus/memory/storage against a
// measured host. A failure is fatal unless ignoreFailures is set, in
// which case the caller is expected to log instead of abort.
func ValidateHostRequirements(req *HostRequirements, measured HostMeasurement, ignoreFailures bool) ([]HostRequirementResult, error) {
	if req == nil {
		return nil, nil
	}
	var results []HostRequirementResult
	var failed []string

	if req.CPUs != "" {
		required, err := req.CPUs.Int64()
		if err != nil {
			if f, ferr := req.CPUs.Float64(); ferr == nil {
				required = int64(f)
			} else {
				return nil, &ValidationError{Detail: fmt.Sprintf("hostRequirements.cpus %q is not numeric", req.CPUs)}
			}
		}
		ok := measured.LogicalCPUs >= required
		results = append(results, HostRequirementResult{
			Name: "cpus", Required: req.CPUs.String(),
			Available: strconv.FormatInt(measured.LogicalCPUs, 10), Satisfied: ok,
		})
		if !ok {
			failed = append(failed, "cpus")
		}
	}

	if req.Memory != "" {
		required, err := ParseSizeWithUnit(req.Memory)
		if err != nil {
			return nil, &ValidationError{Detail: err.Error()}
		}
		ok := measured.TotalMemory >= required
		results = append(results, HostRequirementResult{
			Name: "memory", Required: req.Memory,
			Available: strconv.FormatInt(measured.TotalMemory, 10), Satisfied: ok,
		})
		if !ok {
			failed = append(failed, "memory")
		}
	}

	if req.Storage != "" {
		required, err := ParseSizeWithUnit(req.Storage)
		if err != nil {
			return nil, &ValidationError{Detail: err.Error()}
		}
		ok := measured.FreeDisk >= required
		results = append(results, HostRequirementResult{
			Name: "storage", Required: req.Storage,
			Available: strconv.FormatInt(measured.FreeDisk, 10), Satisfied: ok,
		})
		if !ok {
			failed = append(failed, "storage")
		}
	}

	if len(failed) > 0 && !ignoreFailures {
		return results, &ValidationError{Detail: fmt.Sprintf("host requirements not satisfied: %s", strings.Join(failed, ", "))}
	}
	return results, nil
}

// Secret is a single KEY=VALUE entry read from a secrets file.
type Secret struct {
	Key   string
	Value string
}

// LoadSecretsFile parses a line-based KEY=VALUE file: blank lines and
// lines starting with "#" are ignored, values are taken literally
// with no shell expansion.
func LoadSecretsFile(path string) ([]Secret, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading secrets file %s: %w", path, err)
	}

	var secrets []Secret
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		secrets = append(secrets, Secret{Key: strings.TrimSpace(key), Value: value})
	}
	return secrets, nil
}
