// Package substitute resolves devcontainer.json's `${namespace:name}`
// variable syntax against a substitution context, repeating the pass
// until a fixpoint, a cycle, or a depth limit is reached.
package substitute

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxDepth bounds the number of substitution passes before the
// engine gives up and records a warning.
const DefaultMaxDepth = 5

var tokenPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Context supplies the values the engine looks up while expanding
// tokens that aren't plain environment or feature/template lookups.
type Context struct {
	LocalWorkspaceFolder     string
	DevcontainerID           string
	ContainerWorkspaceFolder string // empty means "unset"
	ContainerEnv             map[string]string
	FeatureVariables         map[string]string
	TemplateOptions          map[string]string
}

// Report records everything observed during a Resolve call.
type Report struct {
	Replacements     map[string]string
	UnknownVariables []string
	FailedVariables  []string
	CycleWarnings    []string
	Passes           int
}

func newReport() *Report {
	return &Report{Replacements: map[string]string{}}
}

// Resolve performs multi-pass substitution over a JSON value tree,
// recursing into arrays and objects and substituting string leaves. The
// returned value is a deep copy; v is never mutated in place. When
// strict is true, a non-empty UnknownVariables or FailedVariables after
// substitution is reported as a StrictModeError instead of being left
// for the caller to notice.
func Resolve(v any, ctx Context, maxDepth int, strict bool) (any, *Report, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	report := newReport()
	out := resolveValue(v, ctx, maxDepth, report)
	sort.Strings(report.UnknownVariables)
	if strict {
		if err := strictError(report); err != nil {
			return out, report, err
		}
	}
	return out, report, nil
}

// ResolveString runs multi-pass substitution on a single string,
// exposed separately since most callers (lifecycle command strings,
// mount strings) operate one string at a time rather than over a
// whole JSON document. strict has the same meaning as in Resolve.
func ResolveString(s string, ctx Context, maxDepth int, strict bool) (string, *Report, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	report := newReport()
	out := resolveStringMultiPass(s, ctx, maxDepth, report)
	sort.Strings(report.UnknownVariables)
	if strict {
		if err := strictError(report); err != nil {
			return out, report, err
		}
	}
	return out, report, nil
}

// StrictModeError reports that strict mode found unresolved tokens
// after substitution reached its fixpoint, cycle, or depth limit.
type StrictModeError struct {
	UnknownVariables []string
	FailedVariables  []string
}

func (e *StrictModeError) Error() string {
	var parts []string
	if len(e.UnknownVariables) > 0 {
		parts = append(parts, fmt.Sprintf("unknown variables: %s", strings.Join(e.UnknownVariables, ", ")))
	}
	if len(e.FailedVariables) > 0 {
		parts = append(parts, fmt.Sprintf("failed variables: %s", strings.Join(e.FailedVariables, ", ")))
	}
	return "substitute: strict mode: " + strings.Join(parts, "; ")
}

func strictError(report *Report) error {
	if len(report.UnknownVariables) == 0 && len(report.FailedVariables) == 0 {
		return nil
	}
	return &StrictModeError{
		UnknownVariables: append([]string{}, report.UnknownVariables...),
		FailedVariables:  append([]string{}, report.FailedVariables...),
	}
}

func resolveValue(v any, ctx Context, maxDepth int, report *Report) any {
	switch x := v.(type) {
	case string:
		return resolveStringMultiPass(x, ctx, maxDepth, report)
	case []any:
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = resolveValue(elem, ctx, maxDepth, report)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, elem := range x {
			out[k] = resolveValue(elem, ctx, maxDepth, report)
		}
		return out
	default:
		return v
	}
}

func resolveStringMultiPass(s string, ctx Context, maxDepth int, report *Report) string {
	seen := map[string]struct{}{s: {}}
	current := s
	for pass := 1; pass <= maxDepth; pass++ {
		report.Passes = pass
		next := resolveOnePass(current, ctx, report)
		if next == current {
			return next
		}
		if _, ok := seen[next]; ok {
			report.CycleWarnings = append(report.CycleWarnings,
				fmt.Sprintf("substitution cycle detected, stopped at pass %d: %q", pass, next))
			return next
		}
		seen[next] = struct{}{}
		current = next
	}
	report.CycleWarnings = append(report.CycleWarnings,
		fmt.Sprintf("substitution did not reach a fixpoint within %d passes", maxDepth))
	return current
}

func resolveOnePass(s string, ctx Context, report *Report) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[2 : len(tok)-1] // strip "${" and "}"
		value, resolved, unchanged := resolveToken(name, ctx)
		switch {
		case unchanged:
			if !isRecognizedNamespace(name) {
				report.UnknownVariables = appendUnique(report.UnknownVariables, name)
			}
			return tok
		case !resolved:
			report.FailedVariables = append(report.FailedVariables, name)
			return ""
		default:
			report.Replacements[name] = value
			return value
		}
	})
}

func appendUnique(ss []string, s string) []string {
	for _, x := range ss {
		if x == s {
			return ss
		}
	}
	return append(ss, s)
}

// resolveToken looks up a single "${name}" token's contents.
// Returns (value, resolved, unchanged): unchanged means the original
// token text should be left exactly as-is (e.g. an unset
// containerWorkspaceFolder, a missing feature/templateOption value, or
// an unknown variable). A localEnv/containerEnv miss is reported as
// resolved with an empty value, collapsing the token to empty string.
func resolveToken(name string, ctx Context) (value string, resolved bool, unchanged bool) {
	switch {
	case name == "localWorkspaceFolder":
		return ctx.LocalWorkspaceFolder, true, false

	case name == "devcontainerId":
		return ctx.DevcontainerID, true, false

	case name == "containerWorkspaceFolder":
		if ctx.ContainerWorkspaceFolder == "" {
			return "", false, true
		}
		return ctx.ContainerWorkspaceFolder, true, false

	case strings.HasPrefix(name, "localEnv:"):
		key := strings.TrimPrefix(name, "localEnv:")
		return os.Getenv(key), true, false

	case strings.HasPrefix(name, "containerEnv:"):
		key := strings.TrimPrefix(name, "containerEnv:")
		if ctx.ContainerEnv == nil {
			return "", true, false
		}
		v, ok := ctx.ContainerEnv[key]
		if !ok {
			return "", true, false
		}
		return v, true, false

	case strings.HasPrefix(name, "feature:"):
		key := strings.TrimPrefix(name, "feature:")
		v, ok := ctx.FeatureVariables[key]
		if !ok {
			return "", false, true
		}
		return v, true, false

	case strings.HasPrefix(name, "templateOption:"):
		key := strings.TrimPrefix(name, "templateOption:")
		v, ok := ctx.TemplateOptions[key]
		if !ok {
			return "", false, true
		}
		return v, true, false

	default:
		return "", false, true
	}
}

// isRecognizedNamespace reports whether name matches one of the token
// forms resolveToken knows about, regardless of whether a value is
// actually available for it.
func isRecognizedNamespace(name string) bool {
	switch {
	case name == "localWorkspaceFolder", name == "devcontainerId", name == "containerWorkspaceFolder",
		strings.HasPrefix(name, "localEnv:"), strings.HasPrefix(name, "containerEnv:"),
		strings.HasPrefix(name, "feature:"), strings.HasPrefix(name, "templateOption:"):
		return true
	default:
		return false
	}
}

// UnknownVariables scans s for tokens this engine does not recognize,
// without performing any substitution. Resolve/ResolveString already
// fold the same result into their Report's UnknownVariables field; this
// standalone form exists for callers that want to check a raw string
// (e.g. a devcontainer.json string leaf) before substitution runs.
func UnknownVariables(s string) []string {
	var unknown []string
	for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
		name := m[1]
		if !isRecognizedNamespace(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// RemainingTokens returns every "${...}" token still present in s,
// sorted, e.g. to list what's left unresolved after a
// Resolve/ResolveString call reaches its fixpoint.
func RemainingTokens(s string) []string {
	matches := tokenPattern.FindAllString(s, -1)
	sort.Strings(matches)
	return matches
}

// MarshalCanonicalJSON serializes v with recursively sorted object
// keys, the canonicalization required before hashing a config or
// lockfile (encoding/json already sorts map[string]any keys, but
// nested json.RawMessage / struct values need a round-trip through
// map[string]any first for this guarantee to hold).
func MarshalCanonicalJSON(v any) ([]byte, error) {
	canon, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(canon)
}

func canonicalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}
