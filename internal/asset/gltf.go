package asset

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"golang.org/x/crypto/blake2b"
)

// DecodeGltf opens a .gltf or .glb file together with its buffers and images.
func DecodeGltf(ctx context.Context, req AssetLoadRequest) (AssetLoadedMessagePayload, error) {
	doc, err := gltf.Open(req.Path)
	if err != nil {
		return AssetLoadedMessagePayload{}, fmt.Errorf("open gltf: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return AssetLoadedMessagePayload{}, err
	}

	digest, _ := blake2b.New256(nil)
	buffers := make([][]byte, len(doc.Buffers))
	for i, b := range doc.Buffers {
		buffers[i] = b.Data
		digest.Write(b.Data)
	}

	images, err := readImages(doc, buffers, filepath.Dir(req.Path))
	if err != nil {
		return AssetLoadedMessagePayload{}, err
	}

	p := AssetLoadedMessagePayload{
		Kind: KindGltfModel,
		Gltf: &GltfPayload{
			ModelName: modelName(doc, req.Path),
			Document:  doc,
			Buffers:   buffers,
			Images:    images,
		},
	}
	copy(p.Digest[:], digest.Sum(nil))
	return p, nil
}

func modelName(doc *gltf.Document, path string) string {
	if len(doc.Scenes) > 0 && doc.Scenes[0].Name != "" {
		return doc.Scenes[0].Name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func readImages(doc *gltf.Document, buffers [][]byte, dir string) ([]ImageData, error) {
	images := make([]ImageData, 0, len(doc.Images))
	for i, img := range doc.Images {
		data, err := imageBytes(doc, buffers, img, dir)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		images = append(images, ImageData{Name: img.Name, MimeType: img.MimeType, Data: data})
	}
	return images, nil
}

func imageBytes(doc *gltf.Document, buffers [][]byte, img *gltf.Image, dir string) ([]byte, error) {
	switch {
	case img.BufferView != nil:
		idx := int(*img.BufferView)
		if idx >= len(doc.BufferViews) {
			return nil, fmt.Errorf("buffer view %d out of range", idx)
		}
		bv := doc.BufferViews[idx]
		b := int(bv.Buffer)
		start, end := int(bv.ByteOffset), int(bv.ByteOffset)+int(bv.ByteLength)
		if b >= len(buffers) || end > len(buffers[b]) {
			return nil, fmt.Errorf("buffer view %d exceeds buffer %d", idx, b)
		}
		return buffers[b][start:end], nil
	case strings.HasPrefix(img.URI, "data:"):
		comma := strings.IndexByte(img.URI, ',')
		if comma < 0 || !strings.HasSuffix(img.URI[:comma], ";base64") {
			return nil, fmt.Errorf("unsupported data uri")
		}
		return base64.StdEncoding.DecodeString(img.URI[comma+1:])
	case img.URI != "":
		return os.ReadFile(filepath.Join(dir, filepath.FromSlash(img.URI)))
	default:
		return nil, nil
	}
}
