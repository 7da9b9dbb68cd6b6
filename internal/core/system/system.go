package system

import "time"

// Phase orders systems within a tick.
type Phase int

const (
	PhaseInput   Phase = iota // file watcher, reload requests
	PhaseStream               // drain the asset queue, apply loads
	PhaseEvents               // dispatch last tick's events
	PhaseUpdate               // per-entity logic
	PhaseRender               // walk drawable models
	PhaseCleanup              // destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseStream:
		return "stream"
	case PhaseEvents:
		return "events"
	case PhaseUpdate:
		return "update"
	case PhaseRender:
		return "render"
	case PhaseCleanup:
		return "cleanup"
	}
	return "phase?"
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
