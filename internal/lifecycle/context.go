package lifecycle

import "github.com/nlsantos/devc/internal/progress"

// Mode is the invocation context's derived execution mode, driving
// which phases are skipped and whether a partial resume is in play.
type Mode string

const (
	ModeFresh         Mode = "fresh"
	ModeResume        Mode = "resume"
	ModePrebuild      Mode = "prebuild"
	ModeSkipPostCreate Mode = "skip_post_create"
)

// nonRuntimePhases are the phases gated by markers and skip logic;
// postStart/postAttach carry no marker gate and run on every
// invocation unless prebuild or skip-post-create mode skips them.
var nonRuntimePhases = []progress.Phase{
	progress.PhaseOnCreate, progress.PhaseUpdateContent, progress.PhasePostCreate, progress.PhaseDotfiles,
}

// DeriveMode implements the invocation-context derivation: explicit
// flags take precedence, then completeness of prior markers, else
// Fresh.
func DeriveMode(prebuild, skipPostCreate bool, priorMarkers map[progress.Phase]Marker) Mode {
	switch {
	case prebuild:
		return ModePrebuild
	case skipPostCreate:
		return ModeSkipPostCreate
	case allNonRuntimeExecuted(priorMarkers):
		return ModeResume
	default:
		return ModeFresh
	}
}

func allNonRuntimeExecuted(priorMarkers map[progress.Phase]Marker) bool {
	for _, phase := range nonRuntimePhases {
		m, ok := priorMarkers[phase]
		if !ok || m.Status != progress.StatusExecuted {
			return false
		}
	}
	return true
}

// shouldSkipPhase decides whether phase executes for the given mode,
// returning the skip reason when it doesn't. The --skip-post-attach
// flag applies on top of any mode.
func shouldSkipPhase(mode Mode, phase progress.Phase, priorMarkers map[progress.Phase]Marker, skipPostAttach bool) (skip bool, reason string) {
	if skipPostAttach && phase == progress.PhasePostAttach {
		return true, "--skip-post-attach flag"
	}

	switch mode {
	case ModePrebuild:
		if phase == progress.PhasePostCreate || phase == progress.PhaseDotfiles ||
			phase == progress.PhasePostStart || phase == progress.PhasePostAttach {
			return true, "prebuild mode"
		}
		return false, ""
	case ModeSkipPostCreate:
		if phase == progress.PhasePostCreate || phase == progress.PhaseDotfiles ||
			phase == progress.PhasePostStart || phase == progress.PhasePostAttach {
			return true, "--skip-post-create flag"
		}
		return false, ""
	case ModeResume:
		if phase.IsRuntimeHook() {
			return false, ""
		}
		return true, "prior completion marker"
	default: // ModeFresh: partial resume per individual prior marker
		if phase.IsRuntimeHook() {
			return false, ""
		}
		if m, ok := priorMarkers[phase]; ok && m.Status == progress.StatusExecuted {
			return true, "prior completion marker"
		}
		return false, ""
	}
}
