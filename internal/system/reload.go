package system

import (
	"time"

	coresys "github.com/assetstream/streamer/internal/core/system"
	"go.uber.org/zap"
)

// ChangeSource reports changed asset paths without blocking.
type ChangeSource interface {
	Drain() []string
}

// ReloadSystem forwards file changes to the streaming system.
type ReloadSystem struct {
	changes   ChangeSource
	streaming *StreamingSystem
	log       *zap.Logger
}

func NewReloadSystem(changes ChangeSource, streaming *StreamingSystem, log *zap.Logger) *ReloadSystem {
	return &ReloadSystem{changes: changes, streaming: streaming, log: log}
}

func (s *ReloadSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ReloadSystem) Update(_ time.Duration) {
	for _, path := range s.changes.Drain() {
		if n := s.streaming.Reload(path); n == 0 {
			s.log.Debug("changed file is not a loaded asset", zap.String("path", path))
		}
	}
}
