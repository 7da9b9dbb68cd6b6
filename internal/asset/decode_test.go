package asset

import (
	"bytes"
	"context"
	"testing"
)

func TestDecodeGltfFixture(t *testing.T) {
	p, err := DecodeGltf(context.Background(), AssetLoadRequest{Kind: KindGltfModel, Path: "testdata/triangle.gltf"})
	if err != nil {
		t.Fatalf("DecodeGltf: %v", err)
	}
	if p.Kind != KindGltfModel || p.Gltf == nil || p.Script != nil {
		t.Fatalf("payload not tagged as gltf: %+v", p)
	}
	g := p.Gltf
	if g.ModelName != "TriangleScene" {
		t.Errorf("ModelName = %q", g.ModelName)
	}
	if len(g.Document.Meshes) != 2 {
		t.Errorf("expected 2 meshes, got %d", len(g.Document.Meshes))
	}
	if len(g.Buffers) != 1 || len(g.Buffers[0]) != 44 {
		t.Errorf("unexpected buffers: %d", len(g.Buffers))
	}
	if len(g.Images) != 1 || !bytes.HasPrefix(g.Images[0].Data, []byte("\x89PNG")) {
		t.Errorf("embedded image not decoded: %+v", g.Images)
	}
	if g.Images[0].MimeType != "image/png" || g.Images[0].Name != "swatch" {
		t.Errorf("image metadata lost: %+v", g.Images[0])
	}
	if p.Digest == [32]byte{} {
		t.Error("digest not computed")
	}
	if len(p.DigestHex()) != 64 {
		t.Errorf("DigestHex length %d", len(p.DigestHex()))
	}
}

func TestDecodeGltfErrors(t *testing.T) {
	for _, path := range []string{"testdata/broken.gltf", "testdata/missing.gltf"} {
		if _, err := DecodeGltf(context.Background(), AssetLoadRequest{Path: path}); err == nil {
			t.Errorf("DecodeGltf(%s) should fail", path)
		}
	}
}

func TestDecodeGltfCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DecodeGltf(ctx, AssetLoadRequest{Path: "testdata/triangle.gltf"}); err == nil {
		t.Fatal("cancelled decode should fail")
	}
}

func TestDecodeLuaScript(t *testing.T) {
	p, err := DecodeLuaScript(context.Background(), AssetLoadRequest{Kind: KindLuaScript, Path: "testdata/hooks.lua"})
	if err != nil {
		t.Fatalf("DecodeLuaScript: %v", err)
	}
	if p.Kind != KindLuaScript || p.Script == nil || p.Script.Proto == nil {
		t.Fatalf("payload missing compiled proto: %+v", p)
	}
	if p.Script.Name != "hooks.lua" {
		t.Errorf("Name = %q", p.Script.Name)
	}

	if _, err := DecodeLuaScript(context.Background(), AssetLoadRequest{Path: "testdata/bad.lua"}); err == nil {
		t.Error("syntax error should fail to decode")
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"models/../models/a.gltf": "models/a.gltf",
		"./b.glb":                 "b.glb",
		"cafe\u0301.gltf":         "caf\u00e9.gltf",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindGltfModel.String() != "gltf" || KindLuaScript.String() != "lua" || Kind(9).String() != "kind(9)" {
		t.Fatal("unexpected Kind strings")
	}
}
