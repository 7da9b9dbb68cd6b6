package system

import (
	"time"

	"github.com/assetstream/streamer/internal/component"
	"github.com/assetstream/streamer/internal/core/ecs"
	"github.com/assetstream/streamer/internal/core/resource"
	coresys "github.com/assetstream/streamer/internal/core/system"
	"github.com/assetstream/streamer/internal/model"
)

// FrameStats summarizes the last rendered tick.
type FrameStats struct {
	Entities  int
	DrawCalls int
	Triangles int
	Loading   int
	Failed    int
	Stale     int
}

// RenderSystem walks visible RenderModel entities and resolves their
// primitives the way a draw pass would. There is no GPU; it only counts.
type RenderSystem struct {
	models *ecs.PtrComponentStore[component.RenderModel]
	res    *model.Resources
	last   FrameStats
}

func NewRenderSystem(models *ecs.PtrComponentStore[component.RenderModel], res *model.Resources) *RenderSystem {
	return &RenderSystem{models: models, res: res}
}

func (s *RenderSystem) Phase() coresys.Phase { return coresys.PhaseRender }

func (s *RenderSystem) Last() FrameStats { return s.last }

func (s *RenderSystem) Update(_ time.Duration) {
	var st FrameStats
	s.res.Models.Read(func(m *resource.ResourceManager[model.StreamingMesh]) {
		s.models.Each(func(_ ecs.EntityID, rm *component.RenderModel) {
			if !rm.Visible {
				return
			}
			st.Entities++
			sm, err := m.GetPtr(rm.Model)
			if err != nil {
				st.Stale++
				return
			}
			switch sm.State().Status {
			case model.StatusLoaded:
			case model.StatusFailed:
				st.Failed++
				return
			default:
				st.Loading++
				return
			}
			st.Stale += sm.Primitives(s.res.Meshes, func(_ resource.Handle[model.Mesh], mesh *model.Mesh) {
				st.DrawCalls++
				st.Triangles += triangleCount(&mesh.Geometry)
			})
		})
	})
	s.last = st
}

func triangleCount(g *model.MeshGeometry) int {
	if len(g.Indices) > 0 {
		return len(g.Indices) / 3
	}
	return len(g.Positions) / 3
}

// SpawnModel creates an entity that draws mesh meshIndex of path.
func SpawnModel(w *ecs.World, models *ecs.PtrComponentStore[component.RenderModel], streaming *StreamingSystem, path string, meshIndex int, label string) ecs.EntityID {
	id := w.CreateEntity(label)
	models.Set(id, &component.RenderModel{
		Model:   streaming.RequestModel(path, meshIndex),
		Visible: true,
	})
	return id
}
