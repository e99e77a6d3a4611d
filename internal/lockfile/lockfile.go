// Package lockfile reads, writes, and validates the content-addressed
// feature lockfile that pins resolved feature versions and digests
// for reproducible builds.
package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gofrs/flock"
)

// Feature is a single locked feature entry.
type Feature struct {
	Version   string   `json:"version"`
	Resolved  string   `json:"resolved"`
	Integrity string   `json:"integrity"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// Lockfile maps feature id (OCI reference without the digest) to its
// locked entry.
type Lockfile struct {
	Features map[string]Feature `json:"features"`
}

var sha256DigestPattern = regexp.MustCompile(`^sha256:[0-9a-fA-F]{64}$`)

// Path derives the lockfile path adjacent to a devcontainer.json:
// ".devcontainer-lock.json" when the config's basename starts with
// ".", otherwise "devcontainer-lock.json", both in the config's
// directory.
func Path(configPath string) string {
	dir := filepath.Dir(configPath)
	base := filepath.Base(configPath)
	name := "devcontainer-lock.json"
	if strings.HasPrefix(base, ".") {
		name = ".devcontainer-lock.json"
	}
	return filepath.Join(dir, name)
}

// Read loads and validates a lockfile from path. A missing file
// returns (nil, nil), not an error.
func Read(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lockfile: reading %s: %w", path, err)
	}

	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("lockfile: parsing %s: %w", path, err)
	}
	if err := Validate(&lf); err != nil {
		return nil, fmt.Errorf("lockfile: validating %s: %w", path, err)
	}
	return &lf, nil
}

// Write serializes lf to path with sorted keys and 2-space
// indentation, via a flock-guarded write-to-temp-then-rename so
// concurrent devc invocations never observe a half-written file.
// An existing file is only overwritten when force is true.
func Write(path string, lf *Lockfile, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("lockfile: %s already exists; pass force to overwrite", path)
	}
	if err := Validate(lf); err != nil {
		return fmt.Errorf("lockfile: refusing to write invalid lockfile: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("lockfile: creating %s: %w", dir, err)
	}

	lockPath := filepath.Join(dir, "."+filepath.Base(path)+".lock")
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lockfile: acquiring write lock: %w", err)
	}
	defer fl.Unlock()

	encoded, err := MarshalSorted(lf)
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return fmt.Errorf("lockfile: writing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("lockfile: renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// MarshalSorted renders lf as indented JSON with deterministic key
// ordering (feature ids and their field names), the same "sort then
// pretty-print" approach as write_lockfile's sort_json_object.
func MarshalSorted(lf *Lockfile) ([]byte, error) {
	raw, err := json.Marshal(lf)
	if err != nil {
		return nil, fmt.Errorf("lockfile: marshaling: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sortAny(generic)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sortAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = sortAny(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortAny(e)
		}
		return out
	default:
		return v
	}
}

// Merge overlays new feature entries onto existing; entries present
// in both win from new, entries only in existing are preserved.
func Merge(existing, updated *Lockfile) *Lockfile {
	merged := &Lockfile{Features: map[string]Feature{}}
	if existing != nil {
		for id, f := range existing.Features {
			merged.Features[id] = f
		}
	}
	if updated != nil {
		for id, f := range updated.Features {
			merged.Features[id] = f
		}
	}
	return merged
}

// Validate checks every feature entry's version/resolved/integrity
// shape, that depends_on references resolve within the lockfile, and
// that no depends_on cycle exists.
func Validate(lf *Lockfile) error {
	for id, f := range lf.Features {
		if _, err := semver.NewVersion(f.Version); err != nil {
			return fmt.Errorf("feature %q: invalid version %q: %w", id, f.Version, err)
		}
		if !strings.Contains(f.Resolved, "@") || !strings.Contains(f.Resolved, "sha256:") {
			return fmt.Errorf("feature %q: resolved %q must be an OCI reference with a sha256 digest", id, f.Resolved)
		}
		if !sha256DigestPattern.MatchString(f.Integrity) {
			return fmt.Errorf("feature %q: integrity %q must be sha256:<64 hex chars>", id, f.Integrity)
		}
		for _, dep := range f.DependsOn {
			if _, ok := lf.Features[dep]; !ok {
				return fmt.Errorf("feature %q: dependsOn %q is not present in the lockfile", id, dep)
			}
		}
	}
	return detectCycles(lf)
}

func detectCycles(lf *Lockfile) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		state[id] = visiting
		path = append(path, id)
		for _, dep := range lf.Features[id].DependsOn {
			switch state[dep] {
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			case visiting:
				path = append(path, dep)
				return fmt.Errorf("circular dependency detected in dependsOn fields: %s", strings.Join(path, " -> "))
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	ids := make([]string, 0, len(lf.Features))
	for id := range lf.Features {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidationResult describes how a lockfile compares to a config's
// declared features.
type ValidationResult struct {
	Matched             bool
	Missing             bool
	ExpectedPath        string
	MissingFromLockfile []string
	ExtraInLockfile     []string
}

// FormatError renders a human-readable, actionable description of a
// non-matched ValidationResult.
func (r ValidationResult) FormatError() string {
	if r.Matched {
		return "lockfile validation passed"
	}
	if r.Missing {
		return fmt.Sprintf(
			"frozen lockfile mode requires a lockfile, but none found at %q.\n"+
				"Run without --frozen-lockfile to generate one, or create one with `devc build --lockfile`.",
			r.ExpectedPath,
		)
	}

	var b strings.Builder
	b.WriteString("frozen lockfile mismatch:\n")
	if len(r.MissingFromLockfile) > 0 {
		fmt.Fprintf(&b, "features declared in config but missing from lockfile:\n  - %s\n", strings.Join(r.MissingFromLockfile, "\n  - "))
	}
	if len(r.ExtraInLockfile) > 0 {
		fmt.Fprintf(&b, "features in lockfile but not declared in config:\n  - %s\n", strings.Join(r.ExtraInLockfile, "\n  - "))
	}
	b.WriteString("update the lockfile or remove --frozen-lockfile to allow resolution.")
	return b.String()
}

// ValidateAgainstConfig compares a (possibly nil/missing) lockfile
// against the feature ids a config declares.
func ValidateAgainstConfig(lf *Lockfile, configFeatureIDs []string, expectedPath string) ValidationResult {
	if lf == nil {
		return ValidationResult{Missing: true, ExpectedPath: expectedPath}
	}

	configSet := map[string]bool{}
	for _, id := range configFeatureIDs {
		configSet[id] = true
	}

	var missingFromLockfile []string
	for _, id := range configFeatureIDs {
		if _, ok := lf.Features[id]; !ok {
			missingFromLockfile = append(missingFromLockfile, id)
		}
	}
	sort.Strings(missingFromLockfile)

	var extraInLockfile []string
	for id := range lf.Features {
		if !configSet[id] {
			extraInLockfile = append(extraInLockfile, id)
		}
	}
	sort.Strings(extraInLockfile)

	if len(missingFromLockfile) == 0 && len(extraInLockfile) == 0 {
		return ValidationResult{Matched: true}
	}
	return ValidationResult{
		MissingFromLockfile: missingFromLockfile,
		ExtraInLockfile:     extraInLockfile,
	}
}
