package component

import (
	"github.com/assetstream/streamer/internal/core/resource"
	"github.com/assetstream/streamer/internal/model"
)

// RenderModel makes an entity draw a streamed model. Several entities may
// point at the same StreamingMesh.
type RenderModel struct {
	Model   resource.Handle[model.StreamingMesh]
	Visible bool
}
