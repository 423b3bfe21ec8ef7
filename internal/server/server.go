package server

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/session"
)

const instructions = `
Source-mapped debugging state for a paused JavaScript program.

Every MCP session owns its own debugger state: sources, source maps,
breakpoints, the selected source and the current pause.

Locations use 1-based lines and 0-based columns.

Recommended Workflow:
1. add_source for each generated script (optionally with its text)
2. add_source_map to register its source map; original sources are added
3. set_breakpoint / select_source / visible_breakpoints to manage breakpoints
4. pause with the generated frames and their scopes (or a stack trace)
5. map_scopes with wait=true to get the original scope chain of a frame
6. resume when execution continues

Scope mapping is best effort: "scopes": null means no mapping is available
for that frame (wasm, pretty-printed or unmapped sources, or a failure).
`

// NewMCPServer creates and configures the MCP server
func NewMCPServer(sessionMgr *session.Manager, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "scopemap-mcp",
		Version: "1.0.0",
	}, &mcp.ServerOptions{
		Instructions: instructions,
	})

	server.AddReceivingMiddleware(createSessionInjectionMiddleware(sessionMgr))
	server.AddReceivingMiddleware(createLoggingMiddleware(logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_source",
		Description: "Add or replace a source. Text is optional; without it the text is loaded from the url when needed.",
	}, addSource)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_source_map",
		Description: "Register the source map of a generated source. The original sources it lists are added and returned.",
	}, addSourceMap)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_source",
		Description: "Select the source shown in the editor. An empty id clears the selection.",
	}, selectSource)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_breakpoint",
		Description: "Set a breakpoint. Generated locations are mapped to original ones through the source map; original locations may carry their generated location.",
	}, setBreakpoint)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_breakpoint",
		Description: "Remove a breakpoint by id.",
	}, removeBreakpoint)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "disable_breakpoint",
		Description: "Enable or disable a breakpoint by id.",
	}, disableBreakpoint)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "visible_breakpoints",
		Description: "List the breakpoints shown in the selected source. Returns null when no source is selected.",
	}, visibleBreakpoints)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pause",
		Description: "Pause with the given generated frames (top frame first) or a generated stack trace. Scope mapping of the top frame starts immediately.",
	}, pauseFrames)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "map_scopes",
		Description: "Get the original scope chain of a paused frame, innermost first. With wait=true the call blocks until the mapping finishes.",
	}, mapScopes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume",
		Description: "Resume execution. Pending scope mappings of the pause are discarded.",
	}, resume)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_directories",
		Description: "Get the source tree nodes from the node of a source up to the root.",
	}, getDirectories)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "map_stack",
		Description: "Rewrite a generated stack trace in terms of original sources.",
	}, mapStack)

	return server
}

// jsonResult renders v as the JSON text content of a tool result
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}
