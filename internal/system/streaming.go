package system

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/assetstream/streamer/internal/asset"
	"github.com/assetstream/streamer/internal/core/event"
	"github.com/assetstream/streamer/internal/core/resource"
	coresys "github.com/assetstream/streamer/internal/core/system"
	"github.com/assetstream/streamer/internal/model"
	"github.com/assetstream/streamer/internal/persist"
	"github.com/assetstream/streamer/internal/scripting"
	"go.uber.org/zap"
)

// LoadRecorder receives one record per completed request.
type LoadRecorder interface {
	Record(persist.LoadRecord) bool
}

type StreamingStats struct {
	Requested int
	Loaded    int
	Failed    int
	Reloaded  int
	Orphaned  int // results whose model was released before they arrived
	Scripts   int
}

type pendingRequest struct {
	submitted time.Time
	reload    bool
}

// StreamingSystem submits model and script loads and applies their results
// on the tick goroutine. It is the only writer of Resources.Models.
type StreamingSystem struct {
	queue   asset.Queue
	res     *model.Resources
	bus     *event.Bus
	scripts *scripting.Engine
	journal LoadRecorder
	log     *zap.Logger

	byKey       map[string]resource.Handle[model.StreamingMesh]
	byPath      map[string][]resource.Handle[model.StreamingMesh]
	scriptPaths map[string]struct{}
	pending     map[asset.RequestID]pendingRequest
	stats       StreamingStats
}

// NewStreamingSystem wires the queue to res. scripts and journal may be nil.
func NewStreamingSystem(q asset.Queue, res *model.Resources, bus *event.Bus, scripts *scripting.Engine, journal LoadRecorder, log *zap.Logger) *StreamingSystem {
	return &StreamingSystem{
		queue:       q,
		res:         res,
		bus:         bus,
		scripts:     scripts,
		journal:     journal,
		log:         log,
		byKey:       make(map[string]resource.Handle[model.StreamingMesh]),
		byPath:      make(map[string][]resource.Handle[model.StreamingMesh]),
		scriptPaths: make(map[string]struct{}),
		pending:     make(map[asset.RequestID]pendingRequest),
	}
}

func (s *StreamingSystem) Phase() coresys.Phase { return coresys.PhaseStream }

func (s *StreamingSystem) Stats() StreamingStats { return s.stats }

// RequestModel returns the StreamingMesh for mesh meshIndex of path,
// creating it and submitting a load the first time the pair is seen.
func (s *StreamingSystem) RequestModel(path string, meshIndex int) resource.Handle[model.StreamingMesh] {
	key := model.MeshKey(path, meshIndex)
	if h, ok := s.byKey[key]; ok && s.res.Models.Contains(h) {
		return h
	}

	sm := model.NewStreamingMeshWithIndex(path, meshIndex)
	h := s.res.Models.Insert(sm)
	s.byKey[key] = h
	s.byPath[sm.Path()] = append(s.byPath[sm.Path()], h)
	s.submit(asset.KindGltfModel, sm.Path(), h.Any(), false)
	s.log.Debug("model requested", zap.String("path", sm.Path()), zap.Int("mesh", meshIndex), zap.Stringer("handle", h))
	return h
}

// RequestScript loads and runs a Lua script asset.
func (s *StreamingSystem) RequestScript(path string) asset.RequestID {
	path = asset.NormalizePath(path)
	s.scriptPaths[path] = struct{}{}
	return s.submit(asset.KindLuaScript, path, resource.AnyHandle{}, false)
}

func (s *StreamingSystem) submit(kind asset.Kind, path string, target resource.AnyHandle, reload bool) asset.RequestID {
	id := s.queue.SubmitTask(asset.AssetLoadRequest{Kind: kind, Path: path, Target: target})
	s.pending[id] = pendingRequest{submitted: time.Now(), reload: reload}
	s.stats.Requested++
	return id
}

// Reload re-requests every loaded model and script read from path. A
// changed .bin file reloads the models in its directory. Failed models stay
// failed.
func (s *StreamingSystem) Reload(path string) int {
	path = asset.NormalizePath(path)
	n := 0
	if _, ok := s.scriptPaths[path]; ok {
		s.submit(asset.KindLuaScript, path, resource.AnyHandle{}, true)
		n++
	}

	var targets []resource.Handle[model.StreamingMesh]
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		dir := filepath.Dir(path)
		for p, hs := range s.byPath {
			if filepath.Dir(p) == dir {
				targets = append(targets, hs...)
			}
		}
	} else {
		targets = s.byPath[path]
	}

	for _, h := range targets {
		var reload bool
		var modelPath string
		s.res.Models.Write(func(m *resource.ResourceManager[model.StreamingMesh]) {
			sm, err := m.GetPtr(h)
			if err != nil || sm.State().Status != model.StatusLoaded {
				return
			}
			if err := sm.Unload(s.res); err != nil {
				return
			}
			reload = sm.MarkLoading() == nil
			modelPath = sm.Path()
		})
		if reload {
			s.submit(asset.KindGltfModel, modelPath, h.Any(), true)
			n++
		}
	}
	if n > 0 {
		s.log.Info("reloading asset", zap.String("path", path), zap.Int("requests", n))
	}
	return n
}

// ReleaseUnused removes models that inUse does not report, freeing their
// meshes, materials and textures. Results still in flight for them are dropped on arrival.
func (s *StreamingSystem) ReleaseUnused(inUse func(resource.Handle[model.StreamingMesh]) bool) int {
	released := 0
	for key, h := range s.byKey {
		if inUse(h) {
			continue
		}
		var path string
		s.res.Models.Write(func(m *resource.ResourceManager[model.StreamingMesh]) {
			sm, err := m.GetPtr(h)
			if err != nil {
				return
			}
			path = sm.Path()
			_ = sm.Unload(s.res)
			_, _ = m.Remove(h)
		})
		delete(s.byKey, key)
		s.dropPathHandle(path, h)
		released++
	}
	return released
}

func (s *StreamingSystem) dropPathHandle(path string, h resource.Handle[model.StreamingMesh]) {
	hs := s.byPath[path]
	for i := range hs {
		if hs[i] == h {
			hs = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(s.byPath, path)
		return
	}
	s.byPath[path] = hs
}

func (s *StreamingSystem) Update(_ time.Duration) {
	for _, r := range s.queue.PollCompleted() {
		s.apply(r)
	}
}

func (s *StreamingSystem) apply(r asset.Result) {
	p, known := s.pending[r.ID]
	delete(s.pending, r.ID)
	var took time.Duration
	if known {
		took = time.Since(p.submitted)
	}

	switch r.Request.Kind {
	case asset.KindGltfModel:
		s.applyModel(r, took, p.reload)
	case asset.KindLuaScript:
		s.applyScript(r)
	default:
		s.log.Warn("asset load failed", zap.String("path", r.Request.Path), zap.Error(r.Err))
	}
	s.record(r, took)
}

func (s *StreamingSystem) applyModel(r asset.Result, took time.Duration, reload bool) {
	h, ok := resource.Downcast[model.StreamingMesh](r.Request.Target)
	if !ok {
		s.log.Warn("model result without a model target", zap.Stringer("id", r.ID), zap.String("path", r.Request.Path))
		s.stats.Orphaned++
		return
	}

	var (
		state      model.ModelLoadState
		primitives int
		applied    bool
	)
	s.res.Models.Write(func(m *resource.ResourceManager[model.StreamingMesh]) {
		sm, err := m.GetPtr(h)
		if err != nil {
			return
		}
		applied = true
		if r.Err != nil {
			if sm.Fail(r.Err.Error()) != nil {
				applied = false
			}
		} else if err := sm.LoadFromGltf(s.res, r.Message.Payload.Gltf); errors.Is(err, model.ErrTerminal) {
			applied = false
		}
		state = sm.State()
		primitives = len(sm.PrimitiveHandles())
	})
	if !applied {
		s.log.Debug("model result dropped", zap.Stringer("handle", h), zap.String("path", r.Request.Path))
		s.stats.Orphaned++
		return
	}

	path := r.Request.Path
	switch state.Status {
	case model.StatusLoaded:
		s.stats.Loaded++
		if reload {
			s.stats.Reloaded++
		}
		s.log.Info("model loaded",
			zap.String("path", path),
			zap.Stringer("handle", h),
			zap.Int("primitives", primitives),
			zap.Duration("took", took),
			zap.String("digest", r.Message.Payload.DigestHex()[:16]))
		event.Emit(s.bus, event.ModelLoaded{Model: h, Path: path, Primitives: primitives, Digest: r.Message.Payload.DigestHex()})
		if s.scripts != nil {
			s.scripts.OnModelLoaded(path, primitives)
		}
	case model.StatusFailed:
		s.stats.Failed++
		s.log.Warn("model failed", zap.String("path", path), zap.Stringer("handle", h), zap.String("reason", state.Reason))
		event.Emit(s.bus, event.ModelFailed{Model: h, Path: path, Reason: state.Reason})
		if s.scripts != nil {
			s.scripts.OnModelFailed(path, state.Reason)
		}
	}
}

func (s *StreamingSystem) applyScript(r asset.Result) {
	path := r.Request.Path
	err := r.Err
	if err == nil {
		if s.scripts == nil {
			s.log.Warn("script loaded without a script engine", zap.String("path", path))
			return
		}
		err = s.scripts.Run(r.Message.Payload.Script)
	}
	if err != nil {
		s.log.Warn("script failed", zap.String("path", path), zap.Error(err))
	} else {
		s.stats.Scripts++
		s.log.Info("script ran", zap.String("path", path))
	}
	event.Emit(s.bus, event.ScriptLoaded{Path: path, Err: err})
}

func (s *StreamingSystem) record(r asset.Result, took time.Duration) {
	if s.journal == nil {
		return
	}
	rec := persist.LoadRecord{
		RequestID: r.ID,
		Path:      r.Request.Path,
		Kind:      r.Request.Kind.String(),
		OK:        r.OK(),
		Duration:  took,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	} else {
		rec.Digest = r.Message.Payload.DigestHex()
	}
	s.journal.Record(rec)
}

// State returns the current load state of h.
func (s *StreamingSystem) State(h resource.Handle[model.StreamingMesh]) (model.ModelLoadState, error) {
	sm, err := s.res.Models.Get(h)
	if err != nil {
		return model.ModelLoadState{}, err
	}
	return sm.State(), nil
}

// Pending reports requests submitted but not yet applied.
func (s *StreamingSystem) Pending() int { return len(s.pending) }
