package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeTempConfig(t *testing.T, dir, relPath, contents string) string {
	t.Helper()
	full := filepath.Join(dir, relPath)
	assert.Nil(t, os.MkdirAll(filepath.Dir(full), 0o755))
	assert.Nil(t, os.WriteFile(full, []byte(contents), 0o644))
	return full
}

func TestLocatePrefersDotDevcontainerDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTempConfig(t, dir, filepath.Join(".devcontainer", "devcontainer.json"), `{"name":"a"}`)
	writeTempConfig(t, dir, ".devcontainer.json", `{"name":"b"}`)

	found, err := Locate(dir, "")
	assert.Nil(t, err)
	assert.Equal(t, filepath.Join(dir, ".devcontainer", "devcontainer.json"), found)
}

func TestLocateFallsBackToDotDevcontainerJSON(t *testing.T) {
	dir := t.TempDir()
	writeTempConfig(t, dir, ".devcontainer.json", `{"name":"b"}`)

	found, err := Locate(dir, "")
	assert.Nil(t, err)
	assert.Equal(t, filepath.Join(dir, ".devcontainer.json"), found)
}

func TestLocateNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Locate(dir, "")
	assert.NotNil(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestParseTolerateJSONCComments(t *testing.T) {
	dir := t.TempDir()
	path := writeTempConfig(t, dir, "devcontainer.json", `{
		// a line comment
		"name": "demo",
		/* a block comment */
		"image": "debian:bookworm",
	}`)

	cfg, err := Parse(path)
	assert.Nil(t, err)
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, "debian:bookworm", cfg.Image)
}

func TestParsePreservesUnknownFieldsInExtra(t *testing.T) {
	dir := t.TempDir()
	path := writeTempConfig(t, dir, "devcontainer.json", `{"name":"demo","someToolSpecificField":{"x":1}}`)

	cfg, err := Parse(path)
	assert.Nil(t, err)
	assert.Contains(t, cfg.Extra, "someToolSpecificField")
}

func TestHashIsDeterministicAndLength8(t *testing.T) {
	cfg := &DevContainerConfig{Name: "demo", Image: "debian:bookworm"}
	h1, err := Hash(cfg)
	assert.Nil(t, err)
	assert.Len(t, h1, 8)

	h2, err := Hash(cfg)
	assert.Nil(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashInvariantUnderKeyOrderPermutation(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTempConfig(t, dir, "a.json", `{"name":"demo","image":"debian:bookworm"}`)
	p2 := writeTempConfig(t, dir, "b.json", `{"image":"debian:bookworm","name":"demo"}`)

	c1, err := Parse(p1)
	assert.Nil(t, err)
	c2, err := Parse(p2)
	assert.Nil(t, err)

	h1, err := Hash(c1)
	assert.Nil(t, err)
	h2, err := Hash(c2)
	assert.Nil(t, err)
	assert.Equal(t, h1, h2)
}

func TestMergeScalarOverrideWins(t *testing.T) {
	base := &DevContainerConfig{Name: "base", Image: "base:image"}
	override := &DevContainerConfig{Image: "override:image"}

	merged, err := Merge(base, override)
	assert.Nil(t, err)
	assert.Equal(t, "base", merged.Name)
	assert.Equal(t, "override:image", merged.Image)
}

func TestMergeArrayOverrideReplacesWholesale(t *testing.T) {
	base := &DevContainerConfig{RunArgs: []string{"--a", "--b"}}
	override := &DevContainerConfig{RunArgs: []string{"--c"}}

	merged, err := Merge(base, override)
	assert.Nil(t, err)
	assert.Equal(t, []string{"--c"}, merged.RunArgs)
}

func TestMergeMountsReplacedWholesale(t *testing.T) {
	base := &DevContainerConfig{Mounts: []json.RawMessage{json.RawMessage(`"a:b"`)}}
	override := &DevContainerConfig{Mounts: []json.RawMessage{json.RawMessage(`"c:d"`)}}

	merged, err := Merge(base, override)
	assert.Nil(t, err)
	assert.Len(t, merged.Mounts, 1)
	assert.JSONEq(t, `"c:d"`, string(merged.Mounts[0]))
}

func TestMergeObjectRecursiveOverridePrecedence(t *testing.T) {
	base := &DevContainerConfig{ContainerEnv: map[string]string{"A": "1", "B": "2"}}
	override := &DevContainerConfig{ContainerEnv: map[string]string{"B": "override"}}

	merged, err := Merge(base, override)
	assert.Nil(t, err)
	assert.Equal(t, "1", merged.ContainerEnv["A"])
	assert.Equal(t, "override", merged.ContainerEnv["B"])
}

func TestCommandFlattenString(t *testing.T) {
	var c Command
	assert.Nil(t, json.Unmarshal([]byte(`"echo hi"`), &c))
	out, err := c.Flatten()
	assert.Nil(t, err)
	assert.Equal(t, []string{"echo hi"}, out)
}

func TestCommandFlattenEmptyString(t *testing.T) {
	var c Command
	assert.Nil(t, json.Unmarshal([]byte(`""`), &c))
	out, err := c.Flatten()
	assert.Nil(t, err)
	assert.Empty(t, out)
}

func TestCommandFlattenArray(t *testing.T) {
	var c Command
	assert.Nil(t, json.Unmarshal([]byte(`["echo", "hi"]`), &c))
	out, err := c.Flatten()
	assert.Nil(t, err)
	assert.Equal(t, []string{"echo", "hi"}, out)
}

func TestCommandFlattenArrayRejectsNonStrings(t *testing.T) {
	var c Command
	assert.Nil(t, json.Unmarshal([]byte(`["echo", 1]`), &c))
	_, err := c.Flatten()
	assert.NotNil(t, err)
}

func TestCommandFlattenObjectJoinsSequencesWithSpaces(t *testing.T) {
	var c Command
	assert.Nil(t, json.Unmarshal([]byte(`{"a": "echo a", "b": ["echo", "b"]}`), &c))
	out, err := c.Flatten()
	assert.Nil(t, err)
	assert.ElementsMatch(t, []string{"echo a", "echo b"}, out)
}

func TestCommandFlattenNull(t *testing.T) {
	var c Command
	assert.Nil(t, json.Unmarshal([]byte(`null`), &c))
	out, err := c.Flatten()
	assert.Nil(t, err)
	assert.Empty(t, out)
}

func TestParseSizeWithUnitVariants(t *testing.T) {
	cases := map[string]int64{
		"4gb":  4 * 1000 * 1000 * 1000,
		"4GB":  4 * 1000 * 1000 * 1000,
		"4gib": 4 * 1024 * 1024 * 1024,
		"512mb": 512 * 1000 * 1000,
		"100":   100,
	}
	for input, want := range cases {
		got, err := ParseSizeWithUnit(input)
		assert.Nil(t, err)
		assert.Equal(t, want, got, input)
	}
}

func TestValidateHostRequirementsFailsFatallyByDefault(t *testing.T) {
	req := &HostRequirements{CPUs: "8"}
	measured := HostMeasurement{LogicalCPUs: 2}

	_, err := ValidateHostRequirements(req, measured, false)
	assert.NotNil(t, err)
}

func TestValidateHostRequirementsIgnoreFailuresSucceedsWithResults(t *testing.T) {
	req := &HostRequirements{CPUs: "8"}
	measured := HostMeasurement{LogicalCPUs: 2}

	results, err := ValidateHostRequirements(req, measured, true)
	assert.Nil(t, err)
	assert.False(t, results[0].Satisfied)
}

func TestLoadSecretsFileIgnoresCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := writeTempConfig(t, dir, "secrets.env", "# comment\n\nFOO=bar\nBAZ=qux=extra\n")

	secrets, err := LoadSecretsFile(path)
	assert.Nil(t, err)
	assert.Len(t, secrets, 2)
	assert.Equal(t, "FOO", secrets[0].Key)
	assert.Equal(t, "bar", secrets[0].Value)
	assert.Equal(t, "BAZ", secrets[1].Key)
	assert.Equal(t, "qux=extra", secrets[1].Value)
}
