package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFeature(version string, deps ...string) Feature {
	return Feature{
		Version:   version,
		Resolved:  "ghcr.io/devcontainers/features/node@sha256:" + strings64(),
		Integrity: "sha256:" + strings64(),
		DependsOn: deps,
	}
}

func strings64() string {
	s := ""
	for i := 0; i < 64; i++ {
		s += "a"
	}
	return s
}

func TestPathDotConfigUsesDotLockfile(t *testing.T) {
	assert.Equal(t, filepath.Join(".devcontainer", ".devcontainer-lock.json"), Path(filepath.Join(".devcontainer", ".devcontainer.json")))
}

func TestPathPlainConfigUsesPlainLockfile(t *testing.T) {
	assert.Equal(t, filepath.Join(".devcontainer", "devcontainer-lock.json"), Path(filepath.Join(".devcontainer", "devcontainer.json")))
}

func TestReadMissingFileReturnsNilNil(t *testing.T) {
	lf, err := Read(filepath.Join(t.TempDir(), "nonexistent-lock.json"))
	require.NoError(t, err)
	assert.Nil(t, lf)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devcontainer-lock.json")
	lf := &Lockfile{Features: map[string]Feature{
		"ghcr.io/devcontainers/features/node:1": validFeature("1.2.3"),
	}}
	require.NoError(t, Write(path, lf, true))

	read, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, read)
	assert.Equal(t, "1.2.3", read.Features["ghcr.io/devcontainers/features/node:1"].Version)
}

func TestWriteRefusesOverwriteWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devcontainer-lock.json")
	lf := &Lockfile{Features: map[string]Feature{"a": validFeature("1.0.0")}}
	require.NoError(t, Write(path, lf, true))
	err := Write(path, lf, false)
	assert.Error(t, err)
}

func TestValidateRejectsBadSemver(t *testing.T) {
	lf := &Lockfile{Features: map[string]Feature{"a": validFeature("not-a-version")}}
	assert.Error(t, Validate(lf))
}

func TestValidateRejectsMissingDependency(t *testing.T) {
	lf := &Lockfile{Features: map[string]Feature{"a": validFeature("1.0.0", "b")}}
	assert.Error(t, Validate(lf))
}

func TestValidateDetectsCycle(t *testing.T) {
	lf := &Lockfile{Features: map[string]Feature{
		"a": validFeature("1.0.0", "b"),
		"b": validFeature("1.0.0", "a"),
	}}
	err := Validate(lf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestValidateAcceptsWellFormedLockfile(t *testing.T) {
	lf := &Lockfile{Features: map[string]Feature{
		"common": validFeature("1.0.0"),
		"node":   validFeature("2.0.0", "common"),
	}}
	assert.NoError(t, Validate(lf))
}

func TestMergeNewWinsOnConflict(t *testing.T) {
	existing := &Lockfile{Features: map[string]Feature{"a": validFeature("1.0.0")}}
	updated := &Lockfile{Features: map[string]Feature{"a": validFeature("2.0.0"), "b": validFeature("1.0.0")}}
	merged := Merge(existing, updated)
	assert.Equal(t, "2.0.0", merged.Features["a"].Version)
	assert.Contains(t, merged.Features, "b")
}

func TestMarshalSortedIsDeterministic(t *testing.T) {
	lf := &Lockfile{Features: map[string]Feature{
		"z-feature": validFeature("1.0.0"),
		"a-feature": validFeature("1.0.0"),
	}}
	out1, err := MarshalSorted(lf)
	require.NoError(t, err)
	out2, err := MarshalSorted(lf)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
	assert.Less(t, indexOf(string(out1), "a-feature"), indexOf(string(out1), "z-feature"))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestValidateAgainstConfigMatched(t *testing.T) {
	lf := &Lockfile{Features: map[string]Feature{"a": validFeature("1.0.0")}}
	result := ValidateAgainstConfig(lf, []string{"a"}, "devcontainer-lock.json")
	assert.True(t, result.Matched)
}

func TestValidateAgainstConfigMissingLockfile(t *testing.T) {
	result := ValidateAgainstConfig(nil, []string{"a"}, "devcontainer-lock.json")
	assert.True(t, result.Missing)
	assert.Contains(t, result.FormatError(), "frozen lockfile mode requires")
}

func TestValidateAgainstConfigMismatch(t *testing.T) {
	lf := &Lockfile{Features: map[string]Feature{"extra": validFeature("1.0.0")}}
	result := ValidateAgainstConfig(lf, []string{"missing"}, "devcontainer-lock.json")
	assert.False(t, result.Matched)
	assert.Equal(t, []string{"missing"}, result.MissingFromLockfile)
	assert.Equal(t, []string{"extra"}, result.ExtraInLockfile)
	assert.Contains(t, result.FormatError(), "missing")
}
