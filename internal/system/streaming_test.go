package system

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/assetstream/streamer/internal/asset"
	"github.com/assetstream/streamer/internal/component"
	"github.com/assetstream/streamer/internal/core/ecs"
	"github.com/assetstream/streamer/internal/core/event"
	"github.com/assetstream/streamer/internal/core/resource"
	coresys "github.com/assetstream/streamer/internal/core/system"
	"github.com/assetstream/streamer/internal/model"
	"github.com/assetstream/streamer/internal/persist"
	"github.com/assetstream/streamer/internal/scripting"
	"github.com/assetstream/streamer/internal/workerpool"
	"go.uber.org/zap/zaptest"
)

const (
	triangle = "../asset/testdata/triangle.gltf"
	hooks    = "../asset/testdata/hooks.lua"
)

type memJournal struct {
	records []persist.LoadRecord
}

func (j *memJournal) Record(r persist.LoadRecord) bool {
	j.records = append(j.records, r)
	return true
}

type harness struct {
	world     *ecs.World
	models    *ecs.PtrComponentStore[component.RenderModel]
	res       *model.Resources
	bus       *event.Bus
	scripts   *scripting.Engine
	journal   *memJournal
	streaming *StreamingSystem
	render    *RenderSystem
	runner    *coresys.Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	pool := workerpool.New(2, log)
	q := asset.NewMultithreadedQueue(pool, log)
	t.Cleanup(func() {
		q.Close()
		pool.Close()
	})

	h := &harness{
		world:   ecs.NewWorld(),
		res:     model.NewResources(),
		bus:     event.NewBus(),
		scripts: scripting.NewEngine(log),
		journal: &memJournal{},
		runner:  coresys.NewRunner(),
	}
	t.Cleanup(h.scripts.Close)
	h.models = ecs.NewStore[component.RenderModel](h.world.Registry())
	h.streaming = NewStreamingSystem(q, h.res, h.bus, h.scripts, h.journal, log)
	h.render = NewRenderSystem(h.models, h.res)
	h.runner.Register(NewCleanupSystem(h.world, h.models, h.streaming, log))
	h.runner.Register(h.render)
	h.runner.Register(NewEventDispatchSystem(h.bus))
	h.runner.Register(h.streaming)
	return h
}

// settle ticks until no request is in flight.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.streaming.Pending() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d requests still pending", h.streaming.Pending())
		}
		h.runner.Tick(time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	h.runner.Tick(time.Millisecond)
}

func (h *harness) state(t *testing.T, m resource.Handle[model.StreamingMesh]) model.ModelLoadState {
	t.Helper()
	st, err := h.streaming.State(m)
	if err != nil {
		t.Fatalf("State(%s): %v", m, err)
	}
	return st
}

func TestModelStreamsIn(t *testing.T) {
	h := newHarness(t)
	var loaded []event.ModelLoaded
	event.Subscribe(h.bus, func(e event.ModelLoaded) { loaded = append(loaded, e) })

	a := SpawnModel(h.world, h.models, h.streaming, triangle, 0, "a")
	b := SpawnModel(h.world, h.models, h.streaming, triangle, 0, "b")
	ra, _ := h.models.Get(a)
	rb, _ := h.models.Get(b)
	if ra.Model != rb.Model {
		t.Fatal("same path and mesh did not share a StreamingMesh")
	}
	if st := h.state(t, ra.Model); st.Status != model.StatusLoading {
		t.Fatalf("state before completion = %s", st)
	}

	h.settle(t)
	if st := h.state(t, ra.Model); st != model.Loaded() {
		t.Fatalf("state after completion = %s", st)
	}
	if len(loaded) != 1 || loaded[0].Model != ra.Model || loaded[0].Primitives != 1 {
		t.Fatalf("ModelLoaded events = %+v", loaded)
	}
	if f := h.render.Last(); f.Entities != 2 || f.DrawCalls != 2 || f.Triangles != 2 {
		t.Fatalf("frame = %+v", f)
	}
	if len(h.journal.records) != 1 || !h.journal.records[0].OK || h.journal.records[0].Digest == "" {
		t.Fatalf("journal = %+v", h.journal.records)
	}
}

func TestMissingModelFailsAndStaysFailed(t *testing.T) {
	h := newHarness(t)
	var failed []event.ModelFailed
	event.Subscribe(h.bus, func(e event.ModelFailed) { failed = append(failed, e) })
	if err := h.scripts.Run(compileScript(t, hooks)); err != nil {
		t.Fatal(err)
	}

	id := SpawnModel(h.world, h.models, h.streaming, "testdata/nope.gltf", 0, "ghost")
	rm, _ := h.models.Get(id)
	h.settle(t)

	st := h.state(t, rm.Model)
	if st.Status != model.StatusFailed || st.Reason == "" {
		t.Fatalf("state = %s", st)
	}
	for i := 0; i < 5; i++ {
		h.runner.Tick(time.Millisecond)
	}
	if again := h.state(t, rm.Model); again != st {
		t.Fatalf("failed state changed to %s", again)
	}
	if h.streaming.Reload("testdata/nope.gltf") != 0 {
		t.Fatal("reload re-requested a failed model")
	}
	if len(failed) != 1 || failed[0].Reason != st.Reason {
		t.Fatalf("ModelFailed events = %+v", failed)
	}
	if got := h.scripts.Global("last_failure").String(); got != "testdata/nope.gltf" {
		t.Fatalf("on_model_failed saw %q", got)
	}
	if f := h.render.Last(); f.Failed != 1 || f.DrawCalls != 0 {
		t.Fatalf("frame = %+v", f)
	}
	if len(h.journal.records) != 1 || h.journal.records[0].OK || h.journal.records[0].Error == "" {
		t.Fatalf("journal = %+v", h.journal.records)
	}
}

func TestScriptAssetRunsAndHooksFire(t *testing.T) {
	h := newHarness(t)
	h.streaming.RequestScript(hooks)
	h.settle(t)
	if h.streaming.Stats().Scripts != 1 {
		t.Fatalf("stats = %+v", h.streaming.Stats())
	}

	SpawnModel(h.world, h.models, h.streaming, triangle, 0, "tri")
	h.settle(t)
	if got := h.scripts.Global("last_primitives").String(); got != "1" {
		t.Fatalf("on_model_loaded saw %s primitives", got)
	}
}

func TestReloadReplacesMeshes(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(triangle)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "tri.gltf")
	if err := os.WriteFile(path, src, 0o644); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t)
	id := SpawnModel(h.world, h.models, h.streaming, path, 0, "tri")
	rm, _ := h.models.Get(id)
	h.settle(t)

	sm, _ := h.res.Models.Get(rm.Model)
	before := sm.PrimitiveHandles()[0]
	materials, textures := h.res.Materials.Len(), h.res.Textures.Len()

	if n := h.streaming.Reload(path); n != 1 {
		t.Fatalf("Reload = %d", n)
	}
	if st := h.state(t, rm.Model); st.Status != model.StatusLoading {
		t.Fatalf("state during reload = %s", st)
	}
	if h.res.Meshes.Contains(before) {
		t.Fatal("old primitive still live during reload")
	}
	h.settle(t)

	sm, _ = h.res.Models.Get(rm.Model)
	if sm.State() != model.Loaded() || len(sm.PrimitiveHandles()) != 1 || sm.PrimitiveHandles()[0] == before {
		t.Fatalf("after reload: %s %v", sm.State(), sm.PrimitiveHandles())
	}
	if h.streaming.Stats().Reloaded != 1 {
		t.Fatalf("stats = %+v", h.streaming.Stats())
	}
	if h.res.Materials.Len() != materials || h.res.Textures.Len() != textures {
		t.Fatalf("reload grew materials %d->%d textures %d->%d",
			materials, h.res.Materials.Len(), textures, h.res.Textures.Len())
	}
}

func TestDestroyReleasesLoadedModelResources(t *testing.T) {
	h := newHarness(t)
	baseMaterials, baseTextures := h.res.Materials.Len(), h.res.Textures.Len()
	id := SpawnModel(h.world, h.models, h.streaming, triangle, 0, "tri")
	h.settle(t)
	if h.res.Materials.Len() == baseMaterials || h.res.Meshes.Len() == 0 {
		t.Fatal("model did not load")
	}

	h.world.MarkForDestruction(id)
	h.runner.Tick(time.Millisecond)
	if h.res.Models.Len() != 0 || h.res.Meshes.Len() != 0 {
		t.Fatalf("models=%d meshes=%d after release", h.res.Models.Len(), h.res.Meshes.Len())
	}
	if h.res.Materials.Len() != baseMaterials || h.res.Textures.Len() != baseTextures {
		t.Fatalf("materials=%d textures=%d after release, want %d/%d",
			h.res.Materials.Len(), h.res.Textures.Len(), baseMaterials, baseTextures)
	}
}

func TestDestroyReleasesModelAndDropsLateResult(t *testing.T) {
	h := newHarness(t)
	id := SpawnModel(h.world, h.models, h.streaming, triangle, 0, "tri")
	rm, _ := h.models.Get(id)

	h.world.MarkForDestruction(id)
	h.runner.TickPhase(coresys.PhaseCleanup, time.Millisecond)
	if h.res.Models.Contains(rm.Model) {
		t.Fatal("model still live after its only entity was destroyed")
	}

	h.settle(t)
	if h.res.Meshes.Len() != 0 {
		t.Fatalf("late result inserted %d meshes for a released model", h.res.Meshes.Len())
	}
	if h.streaming.Stats().Orphaned != 1 {
		t.Fatalf("stats = %+v", h.streaming.Stats())
	}
}

type fakeChanges struct{ paths []string }

func (f *fakeChanges) Drain() []string {
	out := f.paths
	f.paths = nil
	return out
}

func TestReloadSystemForwardsChanges(t *testing.T) {
	h := newHarness(t)
	changes := &fakeChanges{}
	h.runner.Register(NewReloadSystem(changes, h.streaming, zaptest.NewLogger(t)))

	SpawnModel(h.world, h.models, h.streaming, triangle, 0, "tri")
	h.settle(t)

	changes.paths = []string{asset.NormalizePath(triangle), "unrelated.gltf"}
	h.runner.Tick(time.Millisecond)
	h.settle(t)
	if h.streaming.Stats().Reloaded != 1 {
		t.Fatalf("stats = %+v", h.streaming.Stats())
	}
}

func compileScript(t *testing.T, path string) *asset.ScriptPayload {
	t.Helper()
	p, err := asset.DecodeLuaScript(t.Context(), asset.AssetLoadRequest{Kind: asset.KindLuaScript, Path: path})
	if err != nil {
		t.Fatal(err)
	}
	return p.Script
}
