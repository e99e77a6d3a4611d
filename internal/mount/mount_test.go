package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMountLongSyntax(t *testing.T) {
	m, warnings, err := ParseMount("type=bind,source=/host/data,target=/workspace/data,ro")
	assert.Nil(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, TypeBind, m.Type)
	assert.Equal(t, "/host/data", m.Source)
	assert.Equal(t, "/workspace/data", m.Target)
	assert.Equal(t, ModeReadOnly, m.Mode)
}

func TestParseMountVolumeSyntaxBind(t *testing.T) {
	m, _, err := ParseMount("/host/data:/workspace/data")
	assert.Nil(t, err)
	assert.Equal(t, TypeBind, m.Type)
	assert.Equal(t, "/host/data", m.Source)
	assert.Equal(t, "/workspace/data", m.Target)
}

func TestParseMountVolumeSyntaxNamedVolume(t *testing.T) {
	m, _, err := ParseMount("mydata:/workspace/data")
	assert.Nil(t, err)
	assert.Equal(t, TypeVolume, m.Type)
	assert.Equal(t, "mydata", m.Source)
}

func TestParseMountVolumeSyntaxWithOptions(t *testing.T) {
	m, _, err := ParseMount("mydata:/workspace/data:ro")
	assert.Nil(t, err)
	assert.Equal(t, ModeReadOnly, m.Mode)
}

func TestParseMountRejectsRelativeTarget(t *testing.T) {
	_, _, err := ParseMount("type=volume,source=mydata,target=relative/path")
	assert.NotNil(t, err)
}

func TestParseMountRequiresSourceForBindAndVolume(t *testing.T) {
	_, _, err := ParseMount("type=bind,target=/workspace/data")
	assert.NotNil(t, err)

	_, _, err = ParseMount("type=volume,target=/workspace/data")
	assert.NotNil(t, err)
}

func TestParseMountTmpfsWithoutSourceIsValid(t *testing.T) {
	m, _, err := ParseMount("type=tmpfs,target=/tmp/scratch")
	assert.Nil(t, err)
	assert.Equal(t, TypeTmpfs, m.Type)
}

func TestParseMountConsistencyWarnsOnNonBind(t *testing.T) {
	_, warnings, err := ParseMount("type=volume,source=mydata,target=/workspace/data,consistency=cached")
	assert.Nil(t, err)
	assert.NotEmpty(t, warnings)
}

func TestParseMountRoundTrip(t *testing.T) {
	original := "type=bind,source=/host/data,target=/workspace/data,ro"
	m, _, err := ParseMount(original)
	assert.Nil(t, err)

	reparsed, _, err := ParseMount(m.String())
	assert.Nil(t, err)
	assert.Equal(t, m, reparsed)
}

func TestObjectNormalizeRequiresTypeAndTarget(t *testing.T) {
	_, err := Object{Target: "/workspace/data"}.Normalize()
	assert.NotNil(t, err)

	_, err = Object{Type: TypeBind}.Normalize()
	assert.NotNil(t, err)
}

func TestMergePrecedenceConfigOverridesFeature(t *testing.T) {
	features := []FeatureMounts{
		{FeatureID: "a", Mounts: []string{"type=volume,source=v1,target=/data"}},
	}
	configMounts := []ConfigMount{
		{String: "type=bind,source=/host,target=/data"},
	}

	result, err := Merge(configMounts, features)
	assert.Nil(t, err)
	assert.Len(t, result.Mounts, 1)
	assert.Equal(t, "source=/host,target=/data", extractSourceTarget(result.Mounts[0].String()))
}

func TestMergePreservesInsertionOrder(t *testing.T) {
	features := []FeatureMounts{
		{FeatureID: "a", Mounts: []string{"type=volume,source=v1,target=/first"}},
		{FeatureID: "b", Mounts: []string{"type=volume,source=v2,target=/second"}},
	}
	configMounts := []ConfigMount{
		{String: "type=bind,source=/host,target=/first"},
		{String: "type=volume,source=v3,target=/third"},
	}

	result, err := Merge(configMounts, features)
	assert.Nil(t, err)

	var targets []string
	for _, m := range result.Mounts {
		targets = append(targets, m.Target)
	}
	assert.Equal(t, []string{"/first", "/second", "/third"}, targets)
}

func TestMergeAttributesFeatureErrors(t *testing.T) {
	features := []FeatureMounts{
		{FeatureID: "broken-feature", Mounts: []string{"type=bind,target=relative"}},
	}
	_, err := Merge(nil, features)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "broken-feature")
}

func TestMergeAttributesConfigErrors(t *testing.T) {
	configMounts := []ConfigMount{
		{String: "type=bind,target=relative"},
	}
	_, err := Merge(configMounts, nil)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "config")
}

// extractSourceTarget strips the leading "type=..." token so assertions
// focus on the fields that matter for the precedence test.
func extractSourceTarget(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			return s[i+1:]
		}
	}
	return s
}
