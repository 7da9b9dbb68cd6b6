package model

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// MeshGeometry is the CPU-side vertex data of one glTF primitive.
type MeshGeometry struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2
	Indices   []uint32
	// GltfMaterial is the document material index, or -1 when unset.
	GltfMaterial int
}

// Bounds returns the axis-aligned bounding box of the positions.
func (g *MeshGeometry) Bounds() (lo, hi mgl32.Vec3) {
	if len(g.Positions) == 0 {
		return lo, hi
	}
	lo, hi = g.Positions[0], g.Positions[0]
	for _, p := range g.Positions[1:] {
		for i := 0; i < 3; i++ {
			if p[i] < lo[i] {
				lo[i] = p[i]
			}
			if p[i] > hi[i] {
				hi[i] = p[i]
			}
		}
	}
	return lo, hi
}

// GeometryFromGltfMesh reads every primitive of mesh into its own geometry.
func GeometryFromGltfMesh(doc *gltf.Document, mesh *gltf.Mesh) ([]MeshGeometry, error) {
	out := make([]MeshGeometry, 0, len(mesh.Primitives))
	for i, prim := range mesh.Primitives {
		g, err := geometryFromPrimitive(doc, prim)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", mesh.Name, i, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func geometryFromPrimitive(doc *gltf.Document, prim *gltf.Primitive) (MeshGeometry, error) {
	g := MeshGeometry{GltfMaterial: -1}

	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return g, fmt.Errorf("primitives must have a POSITION attribute: %w", ErrUnsupportedFormat)
	}
	positions, err := readAccessor(doc, int(posIdx), modeler.ReadPosition)
	if err != nil {
		return g, fmt.Errorf("read positions: %w", err)
	}
	g.Positions = make([]mgl32.Vec3, len(positions))
	for i, p := range positions {
		g.Positions[i] = mgl32.Vec3(p)
	}

	if idx, ok := prim.Attributes["NORMAL"]; ok {
		normals, err := readAccessor(doc, int(idx), modeler.ReadNormal)
		if err != nil {
			return g, fmt.Errorf("read normals: %w", err)
		}
		g.Normals = make([]mgl32.Vec3, len(normals))
		for i, n := range normals {
			g.Normals[i] = mgl32.Vec3(n)
		}
	}

	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		uvs, err := readAccessor(doc, int(idx), modeler.ReadTextureCoord)
		if err != nil {
			return g, fmt.Errorf("read uvs: %w", err)
		}
		g.UVs = make([]mgl32.Vec2, len(uvs))
		for i, uv := range uvs {
			g.UVs[i] = mgl32.Vec2(uv)
		}
	}

	if prim.Indices != nil {
		indices, err := readAccessor(doc, int(*prim.Indices), modeler.ReadIndices)
		if err != nil {
			return g, fmt.Errorf("read indices: %w", err)
		}
		g.Indices = indices
	}

	if prim.Material != nil {
		g.GltfMaterial = int(*prim.Material)
	}
	return g, nil
}

// readAccessor bounds-checks idx before handing the accessor to a modeler reader.
func readAccessor[T any](doc *gltf.Document, idx int, read func(*gltf.Document, *gltf.Accessor, T) (T, error)) (T, error) {
	var zero T
	if idx < 0 || idx >= len(doc.Accessors) {
		return zero, fmt.Errorf("accessor %d out of range (%d accessors): %w", idx, len(doc.Accessors), ErrUnsupportedFormat)
	}
	return read(doc, doc.Accessors[idx], zero)
}
