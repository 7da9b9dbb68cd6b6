package model

import (
	"errors"
	"fmt"
	"weak"

	"github.com/assetstream/streamer/internal/asset"
	"github.com/assetstream/streamer/internal/core/resource"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

// ErrTerminal is returned when a failed model is asked to change state.
var ErrTerminal = errors.New("model load failed permanently")

type LoadStatus uint8

const (
	StatusNotLoaded LoadStatus = iota
	StatusLoading
	StatusLoaded
	StatusFailed
)

func (s LoadStatus) String() string {
	switch s {
	case StatusNotLoaded:
		return "not_loaded"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ModelLoadState is the lifecycle of a StreamingMesh. Reason is only set
// when Status is StatusFailed.
type ModelLoadState struct {
	Status LoadStatus
	Reason string
}

func NotLoaded() ModelLoadState { return ModelLoadState{Status: StatusNotLoaded} }
func Loading() ModelLoadState   { return ModelLoadState{Status: StatusLoading} }
func Loaded() ModelLoadState    { return ModelLoadState{Status: StatusLoaded} }

func Failed(reason string) ModelLoadState {
	return ModelLoadState{Status: StatusFailed, Reason: reason}
}

func (s ModelLoadState) String() string {
	if s.Status == StatusFailed {
		return fmt.Sprintf("failed(%s)", s.Reason)
	}
	return s.Status.String()
}

// StreamingMesh is a model whose geometry arrives asynchronously. It lives
// in Resources.Models and is only mutated on the tick goroutine.
//
// The zero value is a NotLoaded mesh with no path.
type StreamingMesh struct {
	path       string
	meshIndex  int
	state      ModelLoadState
	name       string
	primitives []resource.Handle[Mesh]

	// Materials and textures inserted by the last load. Each load creates
	// its own, so they are removed together with the primitives.
	ownMaterials []resource.Handle[Material]
	ownTextures  []resource.Handle[Texture]

	// materials is weak so a StreamingMesh never keeps the material
	// manager alive on its own.
	materials weak.Pointer[resource.Shared[Material]]
}

// NewStreamingMesh creates a mesh for the first glTF mesh in path. A load
// request is expected to be submitted alongside, so it starts Loading.
func NewStreamingMesh(path string) StreamingMesh {
	return NewStreamingMeshWithIndex(path, 0)
}

func NewStreamingMeshWithIndex(path string, meshIndex int) StreamingMesh {
	return StreamingMesh{
		path:      asset.NormalizePath(path),
		meshIndex: meshIndex,
		state:     Loading(),
	}
}

func (m *StreamingMesh) Path() string                              { return m.path }
func (m *StreamingMesh) MeshIndex() int                            { return m.meshIndex }
func (m *StreamingMesh) State() ModelLoadState                     { return m.state }
func (m *StreamingMesh) Name() string                              { return m.name }
func (m *StreamingMesh) PrimitiveHandles() []resource.Handle[Mesh] { return m.primitives }

// Key identifies the source mesh; two entities requesting the same key share
// one StreamingMesh.
func (m *StreamingMesh) Key() string { return MeshKey(m.path, m.meshIndex) }

func MeshKey(path string, meshIndex int) string {
	return fmt.Sprintf("%s#%d", asset.NormalizePath(path), meshIndex)
}

// MarkLoading moves a NotLoaded mesh back to Loading ahead of a new request.
func (m *StreamingMesh) MarkLoading() error {
	if m.state.Status == StatusFailed {
		return ErrTerminal
	}
	m.state = Loading()
	return nil
}

// Fail records a failed load. Once failed, the reason never changes.
func (m *StreamingMesh) Fail(reason string) error {
	if m.state.Status == StatusFailed {
		return ErrTerminal
	}
	m.primitives = nil
	m.state = Failed(reason)
	return nil
}

// LoadFromGltf builds textures, materials and meshes from a decoded payload
// and inserts them into res, releasing whatever a previous load inserted. On
// error the mesh becomes Failed and nothing stays inserted.
func (m *StreamingMesh) LoadFromGltf(res *Resources, p *asset.GltfPayload) error {
	if m.state.Status == StatusFailed {
		return ErrTerminal
	}
	if err := m.loadFromGltf(res, p); err != nil {
		m.primitives = nil
		m.state = Failed(err.Error())
		return err
	}
	m.state = Loaded()
	return nil
}

func (m *StreamingMesh) loadFromGltf(res *Resources, p *asset.GltfPayload) error {
	if p == nil || p.Document == nil {
		return fmt.Errorf("empty gltf payload: %w", ErrUnsupportedFormat)
	}
	doc := p.Document
	if m.meshIndex < 0 || m.meshIndex >= len(doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range (%d meshes)", m.meshIndex, len(doc.Meshes))
	}
	gltfMesh := doc.Meshes[m.meshIndex]
	geometry, err := GeometryFromGltfMesh(doc, gltfMesh)
	if err != nil {
		return err
	}
	m.release(res)

	var textures []resource.Handle[Texture]
	res.Textures.Write(func(tm *resource.ResourceManager[Texture]) {
		textures = make([]resource.Handle[Texture], len(p.Images))
		for i, img := range p.Images {
			textures[i] = tm.Insert(Texture{Name: img.Name, MimeType: img.MimeType, Data: img.Data})
		}
	})

	var materials []resource.Handle[Material]
	res.Materials.Write(func(mm *resource.ResourceManager[Material]) {
		materials = make([]resource.Handle[Material], len(doc.Materials))
		for i, gm := range doc.Materials {
			materials[i] = mm.Insert(materialFromGltf(doc, gm, textures))
		}
	})

	name := gltfMesh.Name
	if name == "" {
		name = p.ModelName
	}
	prims := make([]resource.Handle[Mesh], 0, len(geometry))
	res.Meshes.Write(func(mm *resource.ResourceManager[Mesh]) {
		for i, g := range geometry {
			mat := res.DefaultMaterial
			if g.GltfMaterial >= 0 && g.GltfMaterial < len(materials) {
				mat = materials[g.GltfMaterial]
			}
			prims = append(prims, mm.Insert(Mesh{
				Name:     fmt.Sprintf("%s/%d", name, i),
				Geometry: g,
				Material: mat,
			}))
		}
	})

	m.name = name
	m.primitives = prims
	m.ownMaterials = materials
	m.ownTextures = textures
	m.materials = weak.Make(res.Materials)
	return nil
}

func materialFromGltf(doc *gltf.Document, gm *gltf.Material, textures []resource.Handle[Texture]) Material {
	mat := Material{
		Name:        gm.Name,
		BaseColor:   mgl32.Vec4{1, 1, 1, 1},
		Metallic:    1,
		Roughness:   1,
		DoubleSided: gm.DoubleSided,
	}
	pbr := gm.PBRMetallicRoughness
	if pbr == nil {
		return mat
	}
	if c := pbr.BaseColorFactor; c != nil {
		mat.BaseColor = mgl32.Vec4{float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3])}
	}
	if pbr.MetallicFactor != nil {
		mat.Metallic = float32(*pbr.MetallicFactor)
	}
	if pbr.RoughnessFactor != nil {
		mat.Roughness = float32(*pbr.RoughnessFactor)
	}
	if ti := pbr.BaseColorTexture; ti != nil {
		texIdx := int(ti.Index)
		if texIdx < len(doc.Textures) && doc.Textures[texIdx].Source != nil {
			src := int(*doc.Textures[texIdx].Source)
			if src < len(textures) {
				mat.BaseColorTexture = textures[src]
			}
		}
	}
	return mat
}

// Unload removes the mesh's primitives, materials and textures from res and
// returns it to NotLoaded.
func (m *StreamingMesh) Unload(res *Resources) error {
	if m.state.Status == StatusFailed {
		return ErrTerminal
	}
	m.release(res)
	m.state = NotLoaded()
	return nil
}

func (m *StreamingMesh) release(res *Resources) {
	res.Meshes.Write(func(mm *resource.ResourceManager[Mesh]) {
		for _, h := range m.primitives {
			mm.Remove(h)
		}
	})
	res.Materials.Write(func(mm *resource.ResourceManager[Material]) {
		for _, h := range m.ownMaterials {
			mm.Remove(h)
		}
	})
	res.Textures.Write(func(tm *resource.ResourceManager[Texture]) {
		for _, h := range m.ownTextures {
			tm.Remove(h)
		}
	})
	m.primitives = nil
	m.ownMaterials = nil
	m.ownTextures = nil
	m.materials = weak.Pointer[resource.Shared[Material]]{}
}

// Primitives calls fn for each primitive that still resolves in meshes.
// Stale handles are skipped; the number skipped is returned.
func (m *StreamingMesh) Primitives(meshes *resource.Shared[Mesh], fn func(resource.Handle[Mesh], *Mesh)) (stale int) {
	meshes.Read(func(mm *resource.ResourceManager[Mesh]) {
		for _, h := range m.primitives {
			mesh, err := mm.GetPtr(h)
			if err != nil {
				stale++
				continue
			}
			fn(h, mesh)
		}
	})
	return stale
}

// Material resolves h through the material manager the mesh was loaded
// into. If that manager has been collected, the result is ErrNotFound.
func (m *StreamingMesh) Material(h resource.Handle[Material]) (Material, error) {
	materials := m.materials.Value()
	if materials == nil {
		return Material{}, fmt.Errorf("material manager released: %w", resource.ErrNotFound)
	}
	return materials.Get(h)
}
