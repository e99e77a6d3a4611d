package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPhaseStatesOrdersBySpecRegardlessOfInput(t *testing.T) {
	phases := []PhaseState{
		{Phase: PhasePostAttach, Status: StatusExecuted},
		{Phase: PhaseOnCreate, Status: StatusExecuted},
		{Phase: PhaseDotfiles, Status: StatusExecuted},
	}
	summary := FromPhaseStates("fresh", phases, false, nil)

	require.Len(t, summary.Phases, 6)
	assert.Equal(t, "onCreate", summary.Phases[0].Phase)
	assert.Equal(t, "executed", summary.Phases[0].Status)
	assert.Equal(t, "updateContent", summary.Phases[1].Phase)
	assert.Equal(t, "pending", summary.Phases[1].Status)
	assert.Equal(t, "dotfiles", summary.Phases[3].Phase)
	assert.Equal(t, "postAttach", summary.Phases[5].Phase)
}

func TestFromPhaseStatesResumeNoPriorMarkers(t *testing.T) {
	phases := make([]PhaseState, 0, 6)
	for _, p := range SpecOrder {
		phases = append(phases, PhaseState{Phase: p, Status: StatusExecuted})
	}
	summary := FromPhaseStates("resume", phases, false, nil)

	for i, p := range summary.Phases {
		isRuntime := Phase(p.Phase).IsRuntimeHook()
		assert.Equal(t, !isRuntime, p.Resumed, "phase %d (%s)", i, p.Phase)
	}
	assert.Equal(t, 4, summary.Summary.ResumedCount)
}

func TestFromPhaseStatesResumeWithPriorMarkersSuppressesResumed(t *testing.T) {
	phases := []PhaseState{{Phase: PhaseOnCreate, Status: StatusExecuted}}
	priors := []PhaseState{{Phase: PhaseOnCreate, Status: StatusExecuted}}
	summary := FromPhaseStates("resume", phases, false, priors)
	assert.False(t, summary.Phases[0].Resumed)
}

func TestFromPhaseStatesFailureMessage(t *testing.T) {
	phases := []PhaseState{
		{Phase: PhaseOnCreate, Status: StatusExecuted},
		{Phase: PhaseUpdateContent, Status: StatusFailed, Reason: "exit code 1"},
	}
	summary := FromPhaseStates("fresh", phases, true, nil)
	assert.Contains(t, summary.Summary.Message, "failed")
	assert.True(t, summary.Summary.ResumeRequired)
	assert.Equal(t, "postCreate", summary.Phases[2].Phase)
	assert.Equal(t, "pending", summary.Phases[2].Status)
}

func TestRenderJSONIsValidAndCamelCase(t *testing.T) {
	summary := FromPhaseStates("fresh", []PhaseState{{Phase: PhaseOnCreate, Status: StatusExecuted}}, false, nil)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(summary.RenderJSON()), &parsed))
	assert.Equal(t, "fresh", parsed["mode"])
	summaryField := parsed["summary"].(map[string]any)
	assert.Contains(t, summaryField, "resumeRequired")
}

func TestRenderTextPlainContainsPhaseNames(t *testing.T) {
	summary := FromPhaseStates("prebuild", []PhaseState{
		{Phase: PhaseOnCreate, Status: StatusExecuted},
		{Phase: PhasePostCreate, Status: StatusSkipped, Reason: "prebuild mode"},
	}, false, nil)

	text := summary.RenderText(false)
	assert.Contains(t, text, "Lifecycle Summary")
	assert.Contains(t, text, "onCreate")
	assert.Contains(t, text, "prebuild mode")
}
