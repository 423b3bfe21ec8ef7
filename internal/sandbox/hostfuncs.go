package sandbox

import (
	"context"
	"encoding/json"

	extism "github.com/extism/go-sdk"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// bindingRequest is sent by the plugin to read a frame binding
type bindingRequest struct {
	Name string `json:"name"`
}

// bindingResponse answers a bindingRequest
type bindingResponse struct {
	Found bool   `json:"found"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// createReadBindingHostFunc creates the host function the plugin uses to
// look up names in the paused frame
func createReadBindingHostFunc(sb *Sandbox) extism.HostFunction {
	return extism.NewHostFunctionWithStack(
		"readBinding",
		func(ctx context.Context, plugin *extism.CurrentPlugin, stack []uint64) {
			// Read input from plugin memory
			inputData, err := plugin.ReadBytes(stack[0])
			if err != nil {
				plugin.Logf(extism.LogLevelError, "Failed to read input: %v", err)
				stack[0] = 0
				return
			}

			responseData := readBinding(sb.currentScope(), inputData)

			// Write response back to plugin memory
			responseOffset, err := plugin.WriteBytes(responseData)
			if err != nil {
				plugin.Logf(extism.LogLevelError, "Failed to write response: %v", err)
				stack[0] = 0
				return
			}

			stack[0] = responseOffset
		},
		[]extism.ValueType{extism.ValueTypeI64}, // input: offset to request JSON
		[]extism.ValueType{extism.ValueTypeI64}, // output: offset to response JSON
	)
}

// readBinding resolves a JSON bindingRequest against scope and returns the
// JSON bindingResponse
func readBinding(scope *model.Scope, input []byte) []byte {
	var req bindingRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return marshalResponse(bindingResponse{Error: "invalid binding request"})
	}

	b, ok := scope.Lookup(req.Name)
	if !ok || b.Unavailable {
		return marshalResponse(bindingResponse{})
	}
	return marshalResponse(bindingResponse{Found: true, Value: b.Value})
}

func marshalResponse(resp bindingResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(bindingResponse{Error: err.Error()})
	}
	return data
}
