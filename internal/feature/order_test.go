package feature

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderPreservesRequestedOrderWithNoEdges(t *testing.T) {
	requested := []Request{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	order, err := Order(requested, map[string]*Metadata{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestOrderHonorsDependsOn(t *testing.T) {
	// b depends on a, but a is requested after b: a must still come first.
	requested := []Request{{ID: "b"}, {ID: "a"}}
	order, err := Order(requested, map[string]*Metadata{
		"b": dependsOnMetadata("a"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestOrderMissingDependsOnIsFatal(t *testing.T) {
	requested := []Request{{ID: "b"}}
	_, err := Order(requested, map[string]*Metadata{
		"b": dependsOnMetadata("a"),
	}, nil)
	assert.Error(t, err)
}

func TestOrderOverrideIsTotalOrder(t *testing.T) {
	requested := []Request{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	order, err := Order(requested, map[string]*Metadata{}, []string{"c", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestMergeOptionsPrecedence(t *testing.T) {
	defaults := map[string]Option{"version": {Default: "lts"}}
	configured := map[string]any{"version": "18"}
	additional := map[string]any{"version": "20"}

	assert.Equal(t, "18", MergeOptions(defaults, configured, additional, false)["version"])
	assert.Equal(t, "20", MergeOptions(defaults, configured, additional, true)["version"])
	assert.Equal(t, "lts", MergeOptions(defaults, nil, nil, false)["version"])
}

func dependsOnMetadata(dep string) *Metadata {
	return &Metadata{DependsOn: map[string]json.RawMessage{dep: json.RawMessage("true")}}
}
