package asset

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/assetstream/streamer/internal/core/resource"
	"github.com/google/uuid"
	"github.com/qmuntal/gltf"
	lua "github.com/yuin/gopher-lua"
	"golang.org/x/text/unicode/norm"
)

// RequestID correlates a submitted request with its completion message.
type RequestID = uuid.UUID

// Kind tags what a request loads and which payload field is populated.
type Kind int

const (
	KindGltfModel Kind = iota + 1
	KindLuaScript
)

func (k Kind) String() string {
	switch k {
	case KindGltfModel:
		return "gltf"
	case KindLuaScript:
		return "lua"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// AssetLoadRequest describes one background load. Target names the consumer
// waiting for the result (typically a StreamingMesh handle); the queue never
// dereferences it.
type AssetLoadRequest struct {
	ID     RequestID
	Kind   Kind
	Path   string
	Target resource.AnyHandle
}

// ImageData is an encoded image referenced by a glTF document.
type ImageData struct {
	Name     string
	MimeType string
	Data     []byte
}

type GltfPayload struct {
	ModelName string
	Document  *gltf.Document
	Buffers   [][]byte
	Images    []ImageData
}

// ScriptPayload holds a compiled chunk. A FunctionProto is immutable and can
// be built on a worker and instantiated later in the VM's goroutine.
type ScriptPayload struct {
	Name  string
	Proto *lua.FunctionProto
}

// AssetLoadedMessagePayload carries the decoded asset. Exactly one of Gltf or
// Script is set, matching Kind.
type AssetLoadedMessagePayload struct {
	Kind   Kind
	Gltf   *GltfPayload
	Script *ScriptPayload
	Digest [32]byte
}

func (p AssetLoadedMessagePayload) DigestHex() string {
	return hex.EncodeToString(p.Digest[:])
}

type AssetLoadedMessage struct {
	ID      RequestID
	Payload AssetLoadedMessagePayload
}

func NewAssetLoadedMessage(id RequestID, payload AssetLoadedMessagePayload) *AssetLoadedMessage {
	return &AssetLoadedMessage{ID: id, Payload: payload}
}

// LoadError is the failure delivered for a request.
type LoadError struct {
	ID   RequestID
	Kind Kind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s %q: %v", e.Kind, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NormalizePath gives the key under which an asset path is tracked.
func NormalizePath(p string) string {
	return filepath.Clean(norm.NFC.String(p))
}
