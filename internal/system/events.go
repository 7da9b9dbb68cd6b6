package system

import (
	"time"

	"github.com/assetstream/streamer/internal/core/event"
	coresys "github.com/assetstream/streamer/internal/core/system"
)

// EventDispatchSystem delivers the previous tick's events.
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
