package asset

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"golang.org/x/crypto/blake2b"
)

// DecodeLuaScript reads and compiles a Lua chunk. Compilation does not need
// an LState, so it is safe off the VM goroutine.
func DecodeLuaScript(ctx context.Context, req AssetLoadRequest) (AssetLoadedMessagePayload, error) {
	src, err := os.ReadFile(req.Path)
	if err != nil {
		return AssetLoadedMessagePayload{}, fmt.Errorf("read script: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return AssetLoadedMessagePayload{}, err
	}
	chunk, err := parse.Parse(bytes.NewReader(src), req.Path)
	if err != nil {
		return AssetLoadedMessagePayload{}, fmt.Errorf("parse script: %w", err)
	}
	proto, err := lua.Compile(chunk, req.Path)
	if err != nil {
		return AssetLoadedMessagePayload{}, fmt.Errorf("compile script: %w", err)
	}
	return AssetLoadedMessagePayload{
		Kind:   KindLuaScript,
		Script: &ScriptPayload{Name: filepath.Base(req.Path), Proto: proto},
		Digest: blake2b.Sum256(src),
	}, nil
}
