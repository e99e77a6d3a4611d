package lifecycle

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsantos/devc/internal/progress"
)

func TestWriteAndLoadMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeMarker(dir, progress.PhaseOnCreate, progress.StatusExecuted, ""))

	markers := LoadMarkers(dir)
	m, ok := markers[progress.PhaseOnCreate]
	require.True(t, ok)
	assert.Equal(t, progress.StatusExecuted, m.Status)
}

func TestLoadMarkersTreatsMissingAsAbsent(t *testing.T) {
	dir := t.TempDir()
	markers := LoadMarkers(dir)
	assert.Empty(t, markers)
}

func TestLoadMarkersTreatsCorruptAsAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeMarker(dir, progress.PhaseOnCreate, progress.StatusExecuted, ""))
	require.NoError(t, writeMarker(dir, progress.PhasePostCreate, progress.StatusFailed, "boom"))
	require.NoError(t, os.WriteFile(markerPath(dir, progress.PhaseDotfiles), []byte("{not json"), 0o644))

	markers := LoadMarkers(dir)
	require.Len(t, markers, 2)
	assert.Equal(t, "boom", markers[progress.PhasePostCreate].Reason)
	_, ok := markers[progress.PhaseDotfiles]
	assert.False(t, ok)
}
