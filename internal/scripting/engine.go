package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/assetstream/streamer/internal/asset"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const (
	hookModelLoaded = "on_model_loaded"
	hookModelFailed = "on_model_failed"
)

var ErrNoProto = errors.New("script payload has no compiled chunk")

// ModelRequester is called when a script asks for a model to be streamed.
type ModelRequester func(path string, meshIndex int) error

// Engine wraps a single gopher-lua VM. Scripts are compiled on loader
// workers but only ever run here, on the tick goroutine.
type Engine struct {
	vm      *lua.LState
	log     *zap.Logger
	request ModelRequester
}

func NewEngine(log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	e := &Engine{vm: vm, log: log}
	vm.SetGlobal("request_model", vm.NewFunction(e.luaRequestModel))
	vm.SetGlobal("log_info", vm.NewFunction(e.luaLogInfo))
	return e
}

// SetRequester wires request_model(path [, mesh_index]) to the streaming
// system. Without a requester the call raises a Lua error.
func (e *Engine) SetRequester(fn ModelRequester) {
	e.request = fn
}

// LoadDir runs every .lua file in dir in name order. A missing dir is not
// an error.
func (e *Engine) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return n, fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
		n++
	}
	return n, nil
}

// Run executes a chunk compiled by the asset loader.
func (e *Engine) Run(p *asset.ScriptPayload) error {
	if p == nil || p.Proto == nil {
		return ErrNoProto
	}
	fn := e.vm.NewFunctionFromProto(p.Proto)
	e.vm.Push(fn)
	if err := e.vm.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("run %s: %w", p.Name, err)
	}
	e.vm.SetTop(0)
	e.log.Debug("ran lua script", zap.String("script", p.Name))
	return nil
}

// OnModelLoaded calls on_model_loaded(path, primitives) if a script defined
// it. The bool reports whether the hook exists.
func (e *Engine) OnModelLoaded(path string, primitives int) (bool, error) {
	return e.callHook(hookModelLoaded, lua.LString(path), lua.LNumber(primitives))
}

// OnModelFailed calls on_model_failed(path, reason) if a script defined it.
func (e *Engine) OnModelFailed(path, reason string) (bool, error) {
	return e.callHook(hookModelFailed, lua.LString(path), lua.LString(reason))
}

func (e *Engine) callHook(name string, args ...lua.LValue) (bool, error) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return false, nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		e.log.Warn("lua hook error", zap.String("hook", name), zap.Error(err))
		return true, fmt.Errorf("%s: %w", name, err)
	}
	return true, nil
}

// Global returns a global variable, mostly for inspection in tests and
// the stats line.
func (e *Engine) Global(name string) lua.LValue {
	return e.vm.GetGlobal(name)
}

func (e *Engine) luaRequestModel(L *lua.LState) int {
	path := L.CheckString(1)
	idx := L.OptInt(2, 0)
	if e.request == nil {
		L.RaiseError("request_model: streaming is not available")
		return 0
	}
	if err := e.request(path, idx); err != nil {
		L.RaiseError("request_model %s: %s", path, err.Error())
	}
	return 0
}

func (e *Engine) luaLogInfo(L *lua.LState) int {
	e.log.Info(L.CheckString(1), zap.String("source", "lua"))
	return 0
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
