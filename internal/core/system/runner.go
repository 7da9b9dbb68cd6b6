package system

import (
	"sort"
	"time"
)

// Runner drives the registered systems once per tick, Input first and
// Cleanup last. Within a phase, systems keep their registration order.
type Runner struct {
	systems []System
	dirty   bool
}

func NewRunner() *Runner {
	return &Runner{systems: make([]System, 0, 8)}
}

// Register adds s; the phase order is restored lazily on the next tick.
func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.dirty = true
}

func (r *Runner) Len() int { return len(r.systems) }

// Tick runs every system with the time elapsed since the previous tick.
func (r *Runner) Tick(dt time.Duration) {
	for _, s := range r.ordered() {
		s.Update(dt)
	}
}

// TickPhase runs only the systems registered for phase.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	for _, s := range r.ordered() {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

func (r *Runner) ordered() []System {
	if r.dirty {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.dirty = false
	}
	return r.systems
}
