package model

import (
	"github.com/assetstream/streamer/internal/core/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// Texture is an encoded image ready for upload.
type Texture struct {
	Name     string
	MimeType string
	Data     []byte
}

type Material struct {
	Name             string
	BaseColor        mgl32.Vec4
	Metallic         float32
	Roughness        float32
	DoubleSided      bool
	BaseColorTexture resource.Handle[Texture]
}

// Mesh is one drawable primitive with its resolved material.
type Mesh struct {
	Name     string
	Geometry MeshGeometry
	Material resource.Handle[Material]
}

// Resources is the set of shared managers that loaded models write into.
type Resources struct {
	Models    *resource.Shared[StreamingMesh]
	Meshes    *resource.Shared[Mesh]
	Materials *resource.Shared[Material]
	Textures  *resource.Shared[Texture]

	// DefaultMaterial is assigned to primitives without a material.
	DefaultMaterial resource.Handle[Material]
}

func NewResources() *Resources {
	r := &Resources{
		Models:    resource.NewShared[StreamingMesh](),
		Meshes:    resource.NewShared[Mesh](),
		Materials: resource.NewShared[Material](),
		Textures:  resource.NewShared[Texture](),
	}
	r.DefaultMaterial = r.Materials.Insert(Material{
		Name:      "default",
		BaseColor: mgl32.Vec4{1, 1, 1, 1},
		Roughness: 1,
	})
	return r
}
