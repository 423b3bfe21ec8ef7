// Package sandbox evaluates expressions inside a WebAssembly plugin. The
// plugin reads frame bindings back through the readBinding host function.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	extism "github.com/extism/go-sdk"
	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// Sandbox provides a WebAssembly evaluation environment. Calls are
// serialized because a plugin instance is single-threaded.
type Sandbox struct {
	plugin *extism.Plugin
	logger *zap.Logger

	mu sync.Mutex
	// scope is the generated chain of the evaluation in progress
	scope *model.Scope
}

type evaluateRequest struct {
	Expression string `json:"expression"`
}

type evaluateResult struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// NewSandbox loads the plugin at wasmPath
func NewSandbox(ctx context.Context, wasmPath string, logger *zap.Logger) (*Sandbox, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmFile{
				Path: wasmPath,
			},
		},
	}

	config := extism.PluginConfig{
		EnableWasi: true,
	}

	sb := &Sandbox{logger: logger}

	hostFunctions := []extism.HostFunction{
		createReadBindingHostFunc(sb),
	}

	plugin, err := extism.NewPlugin(ctx, manifest, config, hostFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin: %w", err)
	}

	sb.plugin = plugin
	return sb, nil
}

// Evaluate calls the plugin's evaluate export with the frame's generated
// chain available to readBinding
func (s *Sandbox) Evaluate(ctx context.Context, frame model.Frame, expression string, generated *model.Scope) (any, error) {
	input, err := json.Marshal(evaluateRequest{Expression: expression})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	s.mu.Lock()
	s.scope = generated
	exit, output, err := s.plugin.CallWithContext(ctx, "evaluate", input)
	s.scope = nil
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("plugin execution failed: %w", err)
	}

	value, err := decodeResult(exit, output, expression)
	if err != nil {
		s.logger.Debug("Plugin evaluation failed",
			zap.String("frame", frame.ID),
			zap.String("expression", expression),
			zap.Error(err))
		return nil, err
	}
	return value, nil
}

// decodeResult interprets the exit code and {result, error} output of the
// evaluate export
func decodeResult(exit uint32, output []byte, expression string) (any, error) {
	if exit != 0 {
		return nil, fmt.Errorf("plugin exited with code %d", exit)
	}

	var result evaluateResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	if result.Error != "" {
		return nil, errors.New(result.Error)
	}
	if result.Result == nil {
		return nil, fmt.Errorf("expression %q produced no value", expression)
	}
	return result.Result, nil
}

func (s *Sandbox) currentScope() *model.Scope {
	// Only read from host calls, which run while mu is held by Evaluate
	return s.scope
}

// Close closes the sandbox and frees resources
func (s *Sandbox) Close(ctx context.Context) {
	if s.plugin != nil {
		s.plugin.Close(ctx)
	}
}
