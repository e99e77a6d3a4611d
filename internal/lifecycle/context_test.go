package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nlsantos/devc/internal/progress"
)

func TestDeriveModePrebuildWins(t *testing.T) {
	assert.Equal(t, ModePrebuild, DeriveMode(true, true, nil))
}

func TestDeriveModeSkipPostCreate(t *testing.T) {
	assert.Equal(t, ModeSkipPostCreate, DeriveMode(false, true, nil))
}

func TestDeriveModeResumeRequiresAllNonRuntimeMarkers(t *testing.T) {
	complete := map[progress.Phase]Marker{
		progress.PhaseOnCreate:      {Status: progress.StatusExecuted},
		progress.PhaseUpdateContent: {Status: progress.StatusExecuted},
		progress.PhasePostCreate:    {Status: progress.StatusExecuted},
		progress.PhaseDotfiles:      {Status: progress.StatusExecuted},
	}
	assert.Equal(t, ModeResume, DeriveMode(false, false, complete))

	partial := map[progress.Phase]Marker{
		progress.PhaseOnCreate: {Status: progress.StatusExecuted},
	}
	assert.Equal(t, ModeFresh, DeriveMode(false, false, partial))
}

func TestShouldSkipPhasePrebuildSkipsPostHooks(t *testing.T) {
	skip, reason := shouldSkipPhase(ModePrebuild, progress.PhasePostStart, nil, false)
	assert.True(t, skip)
	assert.Equal(t, "prebuild mode", reason)

	skip, _ = shouldSkipPhase(ModePrebuild, progress.PhaseOnCreate, nil, false)
	assert.False(t, skip)
}

func TestShouldSkipPhaseResumeNeverSkipsRuntimeHooks(t *testing.T) {
	skip, _ := shouldSkipPhase(ModeResume, progress.PhasePostAttach, nil, false)
	assert.False(t, skip)

	skip, reason := shouldSkipPhase(ModeResume, progress.PhaseOnCreate, nil, false)
	assert.True(t, skip)
	assert.Equal(t, "prior completion marker", reason)
}

func TestShouldSkipPhaseFreshPartialResume(t *testing.T) {
	priors := map[progress.Phase]Marker{progress.PhaseOnCreate: {Status: progress.StatusExecuted}}
	skip, _ := shouldSkipPhase(ModeFresh, progress.PhaseOnCreate, priors, false)
	assert.True(t, skip)

	skip, _ = shouldSkipPhase(ModeFresh, progress.PhaseUpdateContent, priors, false)
	assert.False(t, skip)
}

func TestShouldSkipPhaseSkipPostAttachFlag(t *testing.T) {
	skip, reason := shouldSkipPhase(ModeFresh, progress.PhasePostAttach, nil, true)
	assert.True(t, skip)
	assert.Equal(t, "--skip-post-attach flag", reason)
}
