// Package progress renders lifecycle execution results for the user:
// a structured JSON document for scripted consumers, or a styled text
// report for interactive terminals.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Phase enumerates the six lifecycle phases in spec order.
type Phase string

const (
	PhaseOnCreate      Phase = "onCreate"
	PhaseUpdateContent Phase = "updateContent"
	PhasePostCreate    Phase = "postCreate"
	PhaseDotfiles      Phase = "dotfiles"
	PhasePostStart     Phase = "postStart"
	PhasePostAttach    Phase = "postAttach"
)

// SpecOrder is the fixed presentation order for lifecycle phases,
// independent of the order they were executed or reported in.
var SpecOrder = []Phase{PhaseOnCreate, PhaseUpdateContent, PhasePostCreate, PhaseDotfiles, PhasePostStart, PhasePostAttach}

// IsRuntimeHook reports whether a phase runs every container start
// rather than once at creation; resume tracking treats these
// differently since they're expected to re-execute every run.
func (p Phase) IsRuntimeHook() bool {
	return p == PhasePostStart || p == PhasePostAttach
}

// Status is a phase's terminal execution state.
type Status string

const (
	StatusExecuted Status = "executed"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
	StatusPending  Status = "pending"
)

// PhaseState is what the lifecycle orchestrator reports for one phase
// after a run: what happened, and why if it didn't execute.
type PhaseState struct {
	Phase  Phase
	Status Status
	Reason string
}

// PhaseResult is a single phase's entry in a rendered summary.
type PhaseResult struct {
	Phase           string `json:"phase"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	MarkerPersisted *bool  `json:"markerPersisted,omitempty"`
	Resumed         bool   `json:"resumed,omitempty"`
}

// SummaryInfo is the run-level rollup accompanying the phase list.
type SummaryInfo struct {
	ResumeRequired bool   `json:"resumeRequired"`
	ResumedCount   int    `json:"resumedCount,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Summary is the full rendered lifecycle report for an `up` invocation.
type Summary struct {
	Mode             string        `json:"mode"`
	Phases           []PhaseResult `json:"phases"`
	Summary          SummaryInfo   `json:"summary"`
	BackgroundErrors []string      `json:"backgroundErrors,omitempty"`
}

// WithBackgroundErrors attaches non-blocking-phase failures (timeouts
// or command failures from postStart/postAttach) that must not affect
// the overall exit status but still need to reach the user.
func (s Summary) WithBackgroundErrors(errs []string) Summary {
	s.BackgroundErrors = errs
	return s
}

// FromPhaseStates builds a Summary from the orchestrator's per-phase
// results, reordering them into spec order and filling in any phase
// the orchestrator never reported as "pending" (e.g. after a failure
// aborted the run before later phases ran). priorMarkers, when
// non-nil, is consulted to flag phases that executed in resume mode
// despite having no completed marker from an earlier run.
func FromPhaseStates(mode string, phases []PhaseState, resumeRequired bool, priorMarkers []PhaseState) Summary {
	isResume := mode == "resume"
	byPhase := make(map[Phase]PhaseState, len(phases))
	for _, p := range phases {
		byPhase[p.Phase] = p
	}
	hadPriorMarker := make(map[Phase]bool, len(priorMarkers))
	for _, m := range priorMarkers {
		if m.Status == StatusExecuted {
			hadPriorMarker[m.Phase] = true
		}
	}

	results := make([]PhaseResult, 0, len(SpecOrder))
	resumedCount := 0
	var executed, skipped, failed int

	for _, phase := range SpecOrder {
		state, ok := byPhase[phase]
		if !ok {
			results = append(results, PhaseResult{Phase: string(phase), Status: string(StatusPending)})
			continue
		}

		resumed := isResume && state.Status == StatusExecuted && !hadPriorMarker[phase] && !phase.IsRuntimeHook()
		if resumed {
			resumedCount++
		}
		persisted := state.Status == StatusExecuted
		results = append(results, PhaseResult{
			Phase:           string(phase),
			Status:          string(state.Status),
			Reason:          state.Reason,
			MarkerPersisted: &persisted,
			Resumed:         resumed,
		})

		switch state.Status {
		case StatusExecuted:
			executed++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}

	message := summaryMessage(mode, resumeRequired, resumedCount, executed, skipped, failed)

	return Summary{
		Mode:   mode,
		Phases: results,
		Summary: SummaryInfo{
			ResumeRequired: resumeRequired,
			ResumedCount:   resumedCount,
			Message:        message,
		},
	}
}

func summaryMessage(mode string, resumeRequired bool, resumedCount, executed, skipped, failed int) string {
	switch {
	case failed > 0:
		return fmt.Sprintf("Lifecycle incomplete: %d executed, %d skipped, %d failed", executed, skipped, failed)
	case resumeRequired:
		return fmt.Sprintf("Lifecycle interrupted: %d executed, %d skipped. Resume required.", executed, skipped)
	case resumedCount > 0:
		return fmt.Sprintf("Lifecycle resumed: %d executed (%d resumed from earlier), %d skipped", executed, resumedCount, skipped)
	case mode == "prebuild":
		return fmt.Sprintf("Prebuild complete: %d executed, %d skipped (post* hooks and dotfiles skipped by design)", executed, skipped)
	case mode == "skip_post_create":
		return fmt.Sprintf("Limited lifecycle complete: %d executed, %d skipped (--skip-post-create flag active)", executed, skipped)
	default:
		return fmt.Sprintf("Lifecycle complete: %d executed, %d skipped", executed, skipped)
	}
}

// RenderJSON marshals the summary as pretty-printed JSON.
func (s Summary) RenderJSON() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// RenderText renders the summary as styled text, degrading to plain
// text when isTTY is false.
func (s Summary) RenderText(isTTY bool) string {
	renderer := lipgloss.NewRenderer(os.Stdout)
	var out strings.Builder

	header := fmt.Sprintf("Lifecycle Summary (mode: %s)", s.Mode)
	if isTTY {
		style := renderer.NewStyle().Bold(true)
		if s.Mode == "prebuild" || s.Mode == "skip_post_create" {
			style = style.Foreground(lipgloss.Color("3"))
		}
		header = style.Render(header)
	}
	out.WriteString(header + "\n")

	for _, p := range s.Phases {
		icon, status := phaseGlyph(renderer, p, isTTY)
		line := fmt.Sprintf("  %s %s: %s", icon, p.Phase, status)
		if p.Reason != "" {
			line += fmt.Sprintf(" (%s)", p.Reason)
		}
		out.WriteString(line + "\n")
	}

	if s.Summary.Message != "" {
		msg := s.Summary.Message
		if isTTY {
			color := "2"
			if s.Summary.ResumeRequired {
				color = "3"
			}
			msg = renderer.NewStyle().Foreground(lipgloss.Color(color)).Render(msg)
		}
		out.WriteString("\n" + msg + "\n")
	}

	for _, bgErr := range s.BackgroundErrors {
		line := "  background: " + bgErr
		if isTTY {
			line = renderer.NewStyle().Foreground(lipgloss.Color("3")).Render(line)
		}
		out.WriteString(line + "\n")
	}

	return out.String()
}

func phaseGlyph(renderer *lipgloss.Renderer, p PhaseResult, isTTY bool) (icon, status string) {
	plain := func(i, s string) (string, string) { return i, s }
	if !isTTY {
		switch Status(p.Status) {
		case StatusExecuted:
			if p.Resumed {
				return plain("[>>]", "executed (resumed)")
			}
			return plain("[OK]", "executed")
		case StatusSkipped:
			return plain("[--]", "skipped")
		case StatusFailed:
			return plain("[X]", "FAILED")
		case StatusPending:
			return plain("[..]", "pending")
		default:
			return plain("[?]", p.Status)
		}
	}

	switch Status(p.Status) {
	case StatusExecuted:
		if p.Resumed {
			c := renderer.NewStyle().Foreground(lipgloss.Color("6"))
			return c.Render("[>>]"), c.Render("executed (resumed)")
		}
		c := renderer.NewStyle().Foreground(lipgloss.Color("2"))
		return c.Render("[OK]"), c.Render("executed")
	case StatusSkipped:
		c := renderer.NewStyle().Foreground(lipgloss.Color("3"))
		return c.Render("[--]"), c.Render("skipped")
	case StatusFailed:
		c := renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
		return c.Render("[X]"), c.Render("FAILED")
	case StatusPending:
		c := renderer.NewStyle().Faint(true)
		return c.Render("[..]"), c.Render("pending")
	default:
		c := renderer.NewStyle().Faint(true)
		return c.Render("[?]"), c.Render(p.Status)
	}
}
