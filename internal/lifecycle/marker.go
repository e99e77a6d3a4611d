package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nlsantos/devc/internal/progress"
)

// Marker is the on-disk record of a phase's terminal status, read back
// on the next invocation to derive Resume mode and partial resume.
type Marker struct {
	Phase     progress.Phase `json:"phase"`
	Status    progress.Status `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Reason    string         `json:"reason,omitempty"`
}

func stateDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".devcontainer-state")
}

func markerPath(workspaceRoot string, phase progress.Phase) string {
	return filepath.Join(stateDir(workspaceRoot), string(phase)+".json")
}

// LoadMarkers reads every marker file under the workspace's state
// directory. A missing or unparsable marker is treated as "not
// executed" rather than an error, per the resume-semantics rule that
// corrupted state must not block recovery.
func LoadMarkers(workspaceRoot string) map[progress.Phase]Marker {
	markers := make(map[progress.Phase]Marker, len(progress.SpecOrder))
	for _, phase := range progress.SpecOrder {
		data, err := os.ReadFile(markerPath(workspaceRoot, phase))
		if err != nil {
			continue
		}
		var m Marker
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		markers[phase] = m
	}
	return markers
}

// writeMarker persists a phase's terminal status. Failures to persist
// are surfaced to the caller but never abort the run by themselves.
func writeMarker(workspaceRoot string, phase progress.Phase, status progress.Status, reason string) error {
	if err := os.MkdirAll(stateDir(workspaceRoot), 0o755); err != nil {
		return err
	}
	m := Marker{Phase: phase, Status: status, Timestamp: time.Now(), Reason: reason}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(markerPath(workspaceRoot, phase), data, 0o644)
}
