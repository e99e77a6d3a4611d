package substitute

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveStringLocalWorkspaceFolder(t *testing.T) {
	ctx := Context{LocalWorkspaceFolder: "/home/user/project"}
	out, report, err := ResolveString("${localWorkspaceFolder}/src", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "/home/user/project/src", out)
	assert.Equal(t, "/home/user/project", report.Replacements["localWorkspaceFolder"])
}

func TestResolveStringContainerWorkspaceFolderUnsetLeavesToken(t *testing.T) {
	ctx := Context{}
	out, _, err := ResolveString("${containerWorkspaceFolder}/src", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "${containerWorkspaceFolder}/src", out)
}

func TestResolveStringContainerWorkspaceFolderSet(t *testing.T) {
	ctx := Context{ContainerWorkspaceFolder: "/workspace"}
	out, _, err := ResolveString("${containerWorkspaceFolder}/src", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "/workspace/src", out)
}

func TestResolveStringLocalEnvMissingIsEmpty(t *testing.T) {
	os.Unsetenv("DEVC_TEST_MISSING_VAR")
	ctx := Context{}
	out, _, err := ResolveString("value=${localEnv:DEVC_TEST_MISSING_VAR}", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "value=", out)
}

func TestResolveStringLocalEnvPresent(t *testing.T) {
	os.Setenv("DEVC_TEST_PRESENT_VAR", "hello")
	defer os.Unsetenv("DEVC_TEST_PRESENT_VAR")
	ctx := Context{}
	out, _, err := ResolveString("value=${localEnv:DEVC_TEST_PRESENT_VAR}", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "value=hello", out)
}

func TestResolveStringContainerEnvMissingKeyIsEmpty(t *testing.T) {
	ctx := Context{ContainerEnv: map[string]string{"FOO": "bar"}}
	out, _, err := ResolveString("${containerEnv:MISSING}", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "", out)
}

func TestResolveStringFeatureMissingLeavesTokenUnchanged(t *testing.T) {
	ctx := Context{FeatureVariables: map[string]string{}}
	out, report, err := ResolveString("${feature:VERSION}", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "${feature:VERSION}", out)
	assert.Empty(t, report.UnknownVariables)
}

func TestResolveStringTemplateOptionMissingLeavesTokenUnchanged(t *testing.T) {
	ctx := Context{}
	out, report, err := ResolveString("${templateOption:NAME}", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "${templateOption:NAME}", out)
	assert.Empty(t, report.UnknownVariables)
}

func TestResolveStringUnknownVariableRecordedInReport(t *testing.T) {
	ctx := Context{}
	out, report, err := ResolveString("${someUnknownThing}", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "${someUnknownThing}", out)
	assert.Empty(t, report.Replacements)
	assert.Equal(t, []string{"someUnknownThing"}, report.UnknownVariables)
}

func TestUnknownVariablesDetectsUnrecognizedTokens(t *testing.T) {
	unknown := UnknownVariables("${localWorkspaceFolder} ${mystery} ${anotherOne}")
	assert.Equal(t, []string{"anotherOne", "mystery"}, unknown)
}

func TestResolveStringFixpointIdempotent(t *testing.T) {
	ctx := Context{LocalWorkspaceFolder: "/home/user/project"}
	once, _, err := ResolveString("${localWorkspaceFolder}", ctx, 0, false)
	assert.Nil(t, err)
	twice, report, err := ResolveString(once, ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, once, twice)
	assert.Empty(t, report.CycleWarnings)
}

func TestResolveStringCycleDetected(t *testing.T) {
	// two containerEnv values that point at each other, so a later pass
	// reproduces an earlier pass's output, forcing a cycle.
	ctx := Context{ContainerEnv: map[string]string{"A": "${containerEnv:B}", "B": "${containerEnv:A}"}}
	_, report, err := ResolveString("${containerEnv:A}", ctx, 0, false)
	assert.Nil(t, err)
	assert.NotEmpty(t, report.CycleWarnings)
}

func TestResolveRecursesIntoArraysAndObjects(t *testing.T) {
	ctx := Context{LocalWorkspaceFolder: "/proj"}
	v := map[string]any{
		"a": "${localWorkspaceFolder}/x",
		"b": []any{"${localWorkspaceFolder}/y", "plain"},
	}
	out, _, err := Resolve(v, ctx, 0, false)
	assert.Nil(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "/proj/x", m["a"])
	assert.Equal(t, "/proj/y", m["b"].([]any)[0])
	assert.Equal(t, "plain", m["b"].([]any)[1])
}

// TestResolveStringEnvAndFeatureAndUnknown exercises the scenario
// spec.md §4.3's reporting contract names directly: replacements from
// two different namespaces plus a single unrecognized token.
func TestResolveStringEnvAndFeatureAndUnknown(t *testing.T) {
	os.Setenv("V1", "hi")
	defer os.Unsetenv("V1")
	ctx := Context{FeatureVariables: map[string]string{"f1": "there"}}
	out, report, err := ResolveString("${localEnv:V1} ${feature:f1} ${unknown}", ctx, 0, false)
	assert.Nil(t, err)
	assert.Equal(t, "hi there ${unknown}", out)
	assert.Len(t, report.Replacements, 2)
	assert.Equal(t, []string{"unknown"}, report.UnknownVariables)
}

func TestResolveStringStrictModeFailsOnUnknownVariable(t *testing.T) {
	ctx := Context{}
	_, report, err := ResolveString("${unknown}", ctx, 0, true)
	assert.Error(t, err)
	var strictErr *StrictModeError
	assert.ErrorAs(t, err, &strictErr)
	assert.Equal(t, []string{"unknown"}, strictErr.UnknownVariables)
	assert.Equal(t, []string{"unknown"}, report.UnknownVariables)
}

func TestResolveStringStrictModePassesWhenFullyResolved(t *testing.T) {
	ctx := Context{LocalWorkspaceFolder: "/proj"}
	out, _, err := ResolveString("${localWorkspaceFolder}/src", ctx, 0, true)
	assert.Nil(t, err)
	assert.Equal(t, "/proj/src", out)
}

func TestMarshalCanonicalJSONSortsKeys(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}

	aJSON, err := MarshalCanonicalJSON(a)
	assert.Nil(t, err)
	bJSON, err := MarshalCanonicalJSON(b)
	assert.Nil(t, err)
	assert.Equal(t, string(aJSON), string(bJSON))
}
