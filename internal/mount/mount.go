// Package mount parses, validates, and merges devcontainer mount
// specifications in both Docker's comma-separated "long" syntax and the
// shorthand "source:target[:options]" volume syntax.
package mount

import (
	"fmt"
	"sort"
	"strings"

	apimount "github.com/moby/moby/api/types/mount"
)

// Type enumerates the mount kinds a devcontainer config may request;
// it's an alias of moby's own mount.Type so values produced here plug
// straight into runtime.MountSpec/container.HostConfig without a
// second round of string-constant translation.
type Type = apimount.Type

const (
	TypeBind   = apimount.TypeBind
	TypeVolume = apimount.TypeVolume
	TypeTmpfs  = apimount.TypeTmpfs
)

// Mode is the read/write mode of a mount.
type Mode string

const (
	ModeReadWrite Mode = "rw"
	ModeReadOnly  Mode = "ro"
)

// Consistency is Docker Desktop's bind-mount consistency hint. It only
// applies to bind mounts; elsewhere it's accepted but warned about.
type Consistency = apimount.Consistency

const (
	ConsistencyConsistent = apimount.ConsistencyConsistent
	ConsistencyCached     = apimount.ConsistencyCached
	ConsistencyDelegated  = apimount.ConsistencyDelegated
)

// Mount is the normalized, validated representation of a single mount.
type Mount struct {
	Type        Type
	Source      string
	Target      string
	Mode        Mode
	Consistency Consistency
	Options     map[string]string
}

// Warning is a non-fatal issue surfaced during parse or merge, attributed
// to the feature id ("config" for config-sourced mounts) that produced it.
type Warning struct {
	Source  string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Source, w.Message)
}

// ParseResult bundles a successfully parsed mount with any warnings.
type ParseResult struct {
	Mount    Mount
	Warnings []Warning
}

// ParseMount parses either Docker's long comma-separated syntax or the
// "source:target[:options]" volume shorthand.
func ParseMount(s string) (Mount, []string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Mount{}, nil, fmt.Errorf("mount: empty mount string")
	}
	if looksLikeLongSyntax(s) {
		return parseLongSyntax(s)
	}
	return parseVolumeSyntax(s)
}

// looksLikeLongSyntax distinguishes "type=bind,source=...,target=..." from
// volume shorthand by checking for a recognized key=value token.
func looksLikeLongSyntax(s string) bool {
	for _, tok := range strings.Split(s, ",") {
		k, _, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "type", "source", "src", "target", "dst", "destination", "consistency":
			return true
		}
	}
	return false
}

func parseLongSyntax(s string) (Mount, []string, error) {
	m := Mount{Mode: ModeReadWrite, Options: map[string]string{}}
	var warnings []string

	for _, rawTok := range strings.Split(s, ",") {
		tok := strings.TrimSpace(rawTok)
		if tok == "" {
			continue
		}
		key, value, hasValue := strings.Cut(tok, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if !hasValue {
			switch key {
			case "ro", "readonly":
				m.Mode = ModeReadOnly
				continue
			case "rw", "readwrite":
				m.Mode = ModeReadWrite
				continue
			default:
				warnings = append(warnings, fmt.Sprintf("unknown flag %q", tok))
				continue
			}
		}

		switch key {
		case "type":
			m.Type = Type(value)
		case "source", "src":
			m.Source = value
		case "target", "dst", "destination":
			m.Target = value
		case "consistency":
			m.Consistency = Consistency(value)
		case "ro", "readonly":
			if parseBoolToken(value) {
				m.Mode = ModeReadOnly
			}
		case "rw", "readwrite":
			if parseBoolToken(value) {
				m.Mode = ModeReadWrite
			}
		default:
			m.Options[key] = value
			warnings = append(warnings, fmt.Sprintf("unrecognized option key %q", key))
		}
	}

	if m.Type == "" {
		m.Type = TypeVolume
	}

	vWarnings, err := validate(&m)
	warnings = append(warnings, vWarnings...)
	return m, warnings, err
}

func parseBoolToken(v string) bool {
	switch strings.ToLower(v) {
	case "", "true", "1":
		return true
	default:
		return false
	}
}

// parseVolumeSyntax handles "source:target[:options]". A source beginning
// with "/", ".", or containing "\" is a bind mount; an empty or otherwise
// plain source is a named volume.
func parseVolumeSyntax(s string) (Mount, []string, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Mount{}, nil, fmt.Errorf("mount: %q is not valid volume syntax", s)
	}

	m := Mount{
		Source: parts[0],
		Target: parts[1],
		Mode:   ModeReadWrite,
		Options: map[string]string{},
	}

	var warnings []string
	if len(parts) == 3 {
		for _, opt := range strings.Split(parts[2], ",") {
			switch strings.ToLower(strings.TrimSpace(opt)) {
			case "ro", "readonly":
				m.Mode = ModeReadOnly
			case "rw", "readwrite":
				m.Mode = ModeReadWrite
			case "":
			default:
				k, v, ok := strings.Cut(opt, "=")
				if ok {
					m.Options[strings.ToLower(k)] = v
				} else {
					warnings = append(warnings, fmt.Sprintf("unrecognized option %q", opt))
				}
			}
		}
	}

	switch {
	case m.Source == "":
		m.Type = TypeVolume
	case strings.HasPrefix(m.Source, "/") || strings.HasPrefix(m.Source, ".") || strings.Contains(m.Source, `\`):
		m.Type = TypeBind
	default:
		m.Type = TypeVolume
	}

	vWarnings, err := validate(&m)
	warnings = append(warnings, vWarnings...)
	return m, warnings, err
}

// validate checks the invariants from the mount model contract: target
// must be absolute; bind/volume require a source; consistency on a
// non-bind mount is a warning, not an error.
func validate(m *Mount) ([]string, error) {
	var warnings []string

	if m.Target == "" || !strings.HasPrefix(m.Target, "/") {
		return warnings, fmt.Errorf("mount: target %q must be an absolute path", m.Target)
	}

	switch m.Type {
	case TypeBind, TypeVolume:
		if m.Source == "" {
			return warnings, fmt.Errorf("mount: type %q requires a source", m.Type)
		}
	case TypeTmpfs:
		// source is meaningless for tmpfs
	default:
		return warnings, fmt.Errorf("mount: unknown type %q", m.Type)
	}

	if m.Consistency != "" && m.Type != TypeBind {
		warnings = append(warnings, fmt.Sprintf("consistency %q ignored for non-bind mount type %q", m.Consistency, m.Type))
	}

	return warnings, nil
}

// Object is the JSON object form of a mount as it appears in
// devcontainer.json's "mounts" array.
type Object struct {
	Type        Type              `json:"type"`
	Source      string            `json:"source,omitempty"`
	Target      string            `json:"target"`
	Consistency Consistency       `json:"consistency,omitempty"`
	ReadOnly    bool              `json:"readonly,omitempty"`
	Options     map[string]string `json:"-"`
}

// Normalize converts a mount object to its equivalent long-syntax string,
// the form ParseMount/parseLongSyntax understands.
func (o Object) Normalize() (string, error) {
	if o.Type == "" {
		return "", fmt.Errorf("mount: object form missing \"type\"")
	}
	if o.Target == "" {
		return "", fmt.Errorf("mount: object form missing \"target\"")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "type=%s", o.Type)
	if o.Source != "" {
		fmt.Fprintf(&b, ",source=%s", o.Source)
	}
	fmt.Fprintf(&b, ",target=%s", o.Target)
	if o.ReadOnly {
		b.WriteString(",ro")
	}
	if o.Consistency != "" {
		fmt.Fprintf(&b, ",consistency=%s", o.Consistency)
	}
	for _, k := range sortedKeys(o.Options) {
		fmt.Fprintf(&b, ",%s=%s", k, o.Options[k])
	}
	return b.String(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders a Mount back to long syntax, used when emitting merged
// mounts to a container-creation request.
func (m Mount) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "type=%s", m.Type)
	if m.Source != "" {
		fmt.Fprintf(&b, ",source=%s", m.Source)
	}
	fmt.Fprintf(&b, ",target=%s", m.Target)
	if m.Mode == ModeReadOnly {
		b.WriteString(",ro")
	}
	if m.Consistency != "" {
		fmt.Fprintf(&b, ",consistency=%s", m.Consistency)
	}
	for _, k := range sortedKeys(m.Options) {
		fmt.Fprintf(&b, ",%s=%s", k, m.Options[k])
	}
	return b.String()
}

// FeatureMounts is a named source of mount strings in feature install
// order, used as input to Merge.
type FeatureMounts struct {
	FeatureID string
	Mounts    []string
}

// ConfigMount is either a raw mount string or an object form, as config's
// "mounts" array may contain either.
type ConfigMount struct {
	String string
	Object *Object
}

// MergeError attributes a parse failure to the feature id ("config" for
// config-sourced mounts) that produced the offending mount string.
type MergeError struct {
	Source string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("mount: %s: %v", e.Source, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// MergeResult is the outcome of merging config and feature mounts:
// insertion-ordered mounts plus any non-fatal warnings collected along
// the way.
type MergeResult struct {
	Mounts   []Mount
	Warnings []Warning
}

// Merge combines feature-contributed and config-contributed mounts keyed
// by target, preserving first-seen insertion order. Features are applied
// in installation order first; config mounts are applied last and win
// any target collision, while keeping the mount's original insertion
// position in the output.
func Merge(configMounts []ConfigMount, features []FeatureMounts) (MergeResult, error) {
	order := make([]string, 0)
	byTarget := make(map[string]Mount)
	var warnings []Warning

	addWarnings := func(source string, raw []string) {
		for _, w := range raw {
			warnings = append(warnings, Warning{Source: source, Message: w})
		}
	}

	for _, f := range features {
		for _, raw := range f.Mounts {
			m, ws, err := ParseMount(raw)
			if err != nil {
				return MergeResult{}, &MergeError{Source: f.FeatureID, Err: err}
			}
			addWarnings(f.FeatureID, ws)
			if _, exists := byTarget[m.Target]; !exists {
				order = append(order, m.Target)
			}
			byTarget[m.Target] = m
		}
	}

	for _, cm := range configMounts {
		var (
			m   Mount
			ws  []string
			err error
		)
		switch {
		case cm.Object != nil:
			raw, nerr := cm.Object.Normalize()
			if nerr != nil {
				return MergeResult{}, &MergeError{Source: "config", Err: nerr}
			}
			m, ws, err = ParseMount(raw)
		default:
			m, ws, err = ParseMount(cm.String)
		}
		if err != nil {
			return MergeResult{}, &MergeError{Source: "config", Err: err}
		}
		addWarnings("config", ws)
		if _, exists := byTarget[m.Target]; !exists {
			order = append(order, m.Target)
		}
		byTarget[m.Target] = m
	}

	result := make([]Mount, 0, len(order))
	for _, target := range order {
		result = append(result, byTarget[target])
	}
	return MergeResult{Mounts: result, Warnings: warnings}, nil
}
