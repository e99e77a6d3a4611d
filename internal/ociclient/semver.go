package ociclient

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseTagVersion parses a tag tolerant of a leading "v" and of 1-,
// 2-, or 3-part versions, defaulting missing parts to 0 ("1" → 1.0.0,
// "1.2" → 1.2.0).
func ParseTagVersion(tag string) (*semver.Version, bool) {
	trimmed := strings.TrimPrefix(tag, "v")
	parts := strings.Split(trimmed, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	if len(parts) > 3 {
		return nil, false
	}
	v, err := semver.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return nil, false
	}
	return v, true
}

// FilterSemverTags returns only the tags that parse as a semantic
// version under ParseTagVersion's tolerant rules.
func FilterSemverTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := ParseTagVersion(t); ok {
			out = append(out, t)
		}
	}
	return out
}

// SortSemverTags sorts tags (assumed to all parse via ParseTagVersion)
// in ascending semantic version order.
func SortSemverTags(tags []string) []string {
	out := append([]string(nil), tags...)
	sort.Slice(out, func(i, j int) bool {
		vi, _ := ParseTagVersion(out[i])
		vj, _ := ParseTagVersion(out[j])
		return vi.LessThan(vj)
	})
	return out
}

// ComputeSemanticTags expands a fully-qualified "major.minor.patch"
// version into the tag set a publish step should push:
// "1.2.3" → ["1", "1.2", "1.2.3", "latest"].
func ComputeSemanticTags(version string) ([]string, bool) {
	v, ok := ParseTagVersion(version)
	if !ok {
		return nil, false
	}
	major, minor, patch := strconv.FormatInt(v.Major(), 10), strconv.FormatInt(v.Minor(), 10), strconv.FormatInt(v.Patch(), 10)
	return []string{
		major,
		major + "." + minor,
		major + "." + minor + "." + patch,
		"latest",
	}, true
}
