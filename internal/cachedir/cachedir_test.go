package cachedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootUsesXDGCacheHomeWhenPresent(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CACHE_HOME", dir)

	root, err := Root()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, appName), root)
	_, statErr := os.Stat(root)
	assert.NoError(t, statErr)
}

func TestFeaturesDirIsSubtreeOfRoot(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CACHE_HOME", dir)

	featuresDir, err := FeaturesDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, appName, "features"), featuresDir)
}

func TestAuthAndDigestCachePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CACHE_HOME", dir)

	authPath, err := AuthCachePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, appName, "auth-cache.csv"), authPath)

	digestPath, err := DigestCachePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, appName, "digests.csv"), digestPath)
}
