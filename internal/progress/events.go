package progress

import "sync/atomic"

// EventKind enumerates the structured progress events emitted during
// a lifecycle run; a JSON-mode caller streams these to stdout as they
// occur, one document per line.
type EventKind string

const (
	EventLifecyclePhaseBegin   EventKind = "lifecycle.phase.begin"
	EventLifecyclePhaseEnd     EventKind = "lifecycle.phase.end"
	EventLifecycleCommandBegin EventKind = "lifecycle.command.begin"
	EventLifecycleCommandEnd   EventKind = "lifecycle.command.end"
	EventBuildBegin            EventKind = "build.begin"
	EventBuildEnd               EventKind = "build.end"
	EventFeatureBegin          EventKind = "feature.begin"
	EventFeatureEnd            EventKind = "feature.end"
)

var nextEventID uint64

// Event is one entry in the progress stream. Not every field applies
// to every Kind; zero values are omitted on JSON marshal.
type Event struct {
	ID      uint64    `json:"id"`
	Kind    EventKind `json:"kind"`
	Phase   string    `json:"phase,omitempty"`
	Feature string    `json:"feature,omitempty"`
	Command string    `json:"command,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Emitter hands out monotonically increasing event ids and forwards
// finished events to a sink, decoupling the orchestrator from how
// events are ultimately rendered (JSON stream vs styled text vs
// discarded in quiet mode).
type Emitter struct {
	sink func(Event)
}

// NewEmitter returns an Emitter that calls sink for every event; a
// nil sink discards events.
func NewEmitter(sink func(Event)) *Emitter {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Emitter{sink: sink}
}

func (e *Emitter) emit(kind EventKind, mutate func(*Event)) Event {
	ev := Event{ID: atomic.AddUint64(&nextEventID, 1), Kind: kind}
	if mutate != nil {
		mutate(&ev)
	}
	e.sink(ev)
	return ev
}

// PhaseBegin/PhaseEnd bracket a lifecycle phase's execution.
func (e *Emitter) PhaseBegin(phase Phase) Event {
	return e.emit(EventLifecyclePhaseBegin, func(ev *Event) { ev.Phase = string(phase) })
}

func (e *Emitter) PhaseEnd(phase Phase, err error) Event {
	return e.emit(EventLifecyclePhaseEnd, func(ev *Event) {
		ev.Phase = string(phase)
		if err != nil {
			ev.Error = err.Error()
		}
	})
}

// CommandBegin/CommandEnd bracket a single lifecycle command within a
// phase (one per feature command plus the config's own command).
func (e *Emitter) CommandBegin(phase Phase, feature, command string) Event {
	return e.emit(EventLifecycleCommandBegin, func(ev *Event) {
		ev.Phase = string(phase)
		ev.Feature = feature
		ev.Command = command
	})
}

func (e *Emitter) CommandEnd(phase Phase, feature, command string, err error) Event {
	return e.emit(EventLifecycleCommandEnd, func(ev *Event) {
		ev.Phase = string(phase)
		ev.Feature = feature
		ev.Command = command
		if err != nil {
			ev.Error = err.Error()
		}
	})
}

// BuildBegin/BuildEnd bracket the image build step.
func (e *Emitter) BuildBegin(message string) Event {
	return e.emit(EventBuildBegin, func(ev *Event) { ev.Message = message })
}

func (e *Emitter) BuildEnd(err error) Event {
	return e.emit(EventBuildEnd, func(ev *Event) {
		if err != nil {
			ev.Error = err.Error()
		}
	})
}

// FeatureBegin/FeatureEnd bracket a single feature's fetch+install.
func (e *Emitter) FeatureBegin(feature string) Event {
	return e.emit(EventFeatureBegin, func(ev *Event) { ev.Feature = feature })
}

func (e *Emitter) FeatureEnd(feature string, err error) Event {
	return e.emit(EventFeatureEnd, func(ev *Event) {
		ev.Feature = feature
		if err != nil {
			ev.Error = err.Error()
		}
	})
}
