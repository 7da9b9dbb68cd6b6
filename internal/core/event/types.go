package event

import (
	"github.com/assetstream/streamer/internal/core/resource"
	"github.com/assetstream/streamer/internal/model"
)

// ModelLoaded is emitted when a StreamingMesh reaches Loaded.
type ModelLoaded struct {
	Model      resource.Handle[model.StreamingMesh]
	Path       string
	Primitives int
	Digest     string
}

// ModelFailed is emitted once, when a StreamingMesh becomes Failed.
type ModelFailed struct {
	Model  resource.Handle[model.StreamingMesh]
	Path   string
	Reason string
}

// ScriptLoaded is emitted after a script asset has run.
type ScriptLoaded struct {
	Path string
	Err  error
}
