package system

import (
	"time"

	"github.com/assetstream/streamer/internal/component"
	"github.com/assetstream/streamer/internal/core/ecs"
	"github.com/assetstream/streamer/internal/core/resource"
	coresys "github.com/assetstream/streamer/internal/core/system"
	"github.com/assetstream/streamer/internal/model"
	"go.uber.org/zap"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end
// and releases models no remaining entity draws.
type CleanupSystem struct {
	world     *ecs.World
	models    *ecs.PtrComponentStore[component.RenderModel]
	streaming *StreamingSystem
	log       *zap.Logger
}

func NewCleanupSystem(world *ecs.World, models *ecs.PtrComponentStore[component.RenderModel], streaming *StreamingSystem, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: world, models: models, streaming: streaming, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if s.world.FlushDestroyQueue() == 0 {
		return
	}
	used := make(map[resource.Handle[model.StreamingMesh]]struct{}, s.models.Len())
	s.models.Each(func(_ ecs.EntityID, rm *component.RenderModel) {
		used[rm.Model] = struct{}{}
	})
	n := s.streaming.ReleaseUnused(func(h resource.Handle[model.StreamingMesh]) bool {
		_, ok := used[h]
		return ok
	})
	if n > 0 {
		s.log.Debug("released unused models", zap.Int("count", n))
	}
}
