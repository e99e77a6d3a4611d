package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadataBasic(t *testing.T) {
	data := []byte(`{
		"id": "node",
		"version": "1.0.0",
		"options": {"version": {"type": "string", "default": "lts"}},
		"installsAfter": ["ghcr.io/devcontainers/features/common-utils"],
		"mounts": ["source=foo,target=/foo,type=bind"],
		"containerEnv": {"NODE_ENV": "production"},
		"somethingVendorSpecific": {"x": 1}
	}`)

	m, err := ParseMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, "node", m.ID)
	assert.Equal(t, []string{"ghcr.io/devcontainers/features/common-utils"}, m.InstallsAfter)
	require.Len(t, m.Mounts, 1)
	assert.Equal(t, "source=foo,target=/foo,type=bind", m.Mounts[0])
	assert.Contains(t, m.Extra, "somethingVendorSpecific")
	assert.NotContains(t, m.Extra, "id")
}

func TestParseMetadataMountObjectForm(t *testing.T) {
	data := []byte(`{"id": "x", "version": "1", "mounts": [{"type": "volume", "source": "data", "target": "/data"}]}`)
	m, err := ParseMetadata(data)
	require.NoError(t, err)
	require.Len(t, m.Mounts, 1)
	assert.Equal(t, "type=volume,source=data,target=/data", m.Mounts[0])
}
