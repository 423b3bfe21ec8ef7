package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/scopemap-mcp/internal/model"
	"github.com/yousuf/scopemap-mcp/internal/pause"
	"github.com/yousuf/scopemap-mcp/internal/store"
)

// defaultWait bounds map_scopes calls with wait=true
const defaultWait = 30 * time.Second

// LocationArgs is a position in a source
type LocationArgs struct {
	SourceID string `json:"sourceId" jsonschema:"Source id"`
	Line     int    `json:"line" jsonschema:"1-based line"`
	Column   int    `json:"column,omitempty" jsonschema:"0-based column"`
}

func (l LocationArgs) location() model.Location {
	return model.Location{SourceID: l.SourceID, Line: l.Line, Column: l.Column}
}

// AddSourceArgs represents the arguments for the add_source tool
type AddSourceArgs struct {
	ID              string  `json:"id" jsonschema:"Source id. Original source ids contain '/originalSource'."`
	URL             string  `json:"url,omitempty" jsonschema:"Source url, used for the source tree, text loading and pending breakpoints"`
	Text            *string `json:"text,omitempty" jsonschema:"Source text"`
	IsWasm          bool    `json:"isWasm,omitempty"`
	IsPrettyPrinted bool    `json:"isPrettyPrinted,omitempty"`
}

// AddSourceMapArgs represents the arguments for the add_source_map tool
type AddSourceMapArgs struct {
	GeneratedID string `json:"generatedId" jsonschema:"Id of the generated source"`
	SourceMap   string `json:"sourceMap" jsonschema:"Version 3 source map JSON"`
}

// SelectSourceArgs represents the arguments for the select_source tool
type SelectSourceArgs struct {
	ID string `json:"id,omitempty" jsonschema:"Source id; empty clears the selection"`
}

// SetBreakpointArgs represents the arguments for the set_breakpoint tool
type SetBreakpointArgs struct {
	SourceID  string        `json:"sourceId" jsonschema:"Source id"`
	Line      int           `json:"line" jsonschema:"1-based line"`
	Column    int           `json:"column,omitempty" jsonschema:"0-based column"`
	Condition string        `json:"condition,omitempty"`
	Disabled  bool          `json:"disabled,omitempty"`
	Generated *LocationArgs `json:"generated,omitempty" jsonschema:"Generated location of an original location"`
}

// BreakpointIDArgs identifies a breakpoint
type BreakpointIDArgs struct {
	ID string `json:"id" jsonschema:"Breakpoint id (sourceId:line:column)"`
}

// DisableBreakpointArgs represents the arguments for the disable_breakpoint tool
type DisableBreakpointArgs struct {
	ID       string `json:"id" jsonschema:"Breakpoint id (sourceId:line:column)"`
	Disabled bool   `json:"disabled"`
}

// EmptyArgs is used by tools without arguments
type EmptyArgs struct{}

// BindingArgs is a generated binding of a paused frame
type BindingArgs struct {
	Name        string `json:"name"`
	Value       any    `json:"value,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
	DeclLine    *int   `json:"declLine,omitempty" jsonschema:"Generated line of the declaration"`
	DeclColumn  *int   `json:"declColumn,omitempty" jsonschema:"Generated column of the declaration"`
}

// ScopeArgs is a generated scope of a paused frame
type ScopeArgs struct {
	Kind     string        `json:"kind" jsonschema:"global, module, function or block"`
	Name     string        `json:"name,omitempty"`
	Bindings []BindingArgs `json:"bindings,omitempty"`
}

// FrameArgs is a paused frame in generated code
type FrameArgs struct {
	DisplayName       string        `json:"displayName,omitempty"`
	GeneratedLocation LocationArgs  `json:"generatedLocation"`
	Location          *LocationArgs `json:"location,omitempty" jsonschema:"Original location, derived from the source map when omitted"`
	Scopes            []ScopeArgs   `json:"scopes,omitempty" jsonschema:"Generated scope chain, innermost first"`
}

// PauseArgs represents the arguments for the pause tool
type PauseArgs struct {
	Frames []FrameArgs `json:"frames,omitempty" jsonschema:"Paused frames, top frame first"`
	Stack  string      `json:"stack,omitempty" jsonschema:"Generated stack trace, used when frames is empty"`
}

// MapScopesArgs represents the arguments for the map_scopes tool
type MapScopesArgs struct {
	FrameID   string `json:"frameId"`
	Wait      bool   `json:"wait,omitempty" jsonschema:"Block until the mapping finishes"`
	TimeoutMs int    `json:"timeoutMs,omitempty" jsonschema:"Wait limit in milliseconds (default 30000)"`
}

// GetDirectoriesArgs represents the arguments for the get_directories tool
type GetDirectoriesArgs struct {
	SourceID string `json:"sourceId"`
}

// MapStackArgs represents the arguments for the map_stack tool
type MapStackArgs struct {
	GeneratedID string `json:"generatedId"`
	Stack       string `json:"stack"`
	Debug       bool   `json:"debug,omitempty" jsonschema:"Suffix each line with its mapping status"`
}

// mappedScopesResult is the map_scopes answer
type mappedScopesResult struct {
	State  pause.State    `json:"state"`
	Frame  model.Frame    `json:"frame"`
	Scopes []*model.Scope `json:"scopes"`
}

// directoryResult is one node of a get_directories answer
type directoryResult struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Path string `json:"path"`
}

func addSource(ctx context.Context, req *mcp.CallToolRequest, args AddSourceArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	src, err := sessionCtx.Store.AddSource(ctx, model.Source{
		ID:              args.ID,
		URL:             args.URL,
		IsWasm:          args.IsWasm,
		IsPrettyPrinted: args.IsPrettyPrinted,
	}, args.Text)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(src)
}

func addSourceMap(ctx context.Context, req *mcp.CallToolRequest, args AddSourceMapArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	originals, err := sessionCtx.Store.AddSourceMap(ctx, args.GeneratedID, []byte(args.SourceMap))
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(originals)
}

func selectSource(ctx context.Context, req *mcp.CallToolRequest, args SelectSourceArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := sessionCtx.Store.SelectSource(args.ID); err != nil {
		return nil, nil, err
	}
	return jsonResult(sessionCtx.Store.Selected())
}

func setBreakpoint(ctx context.Context, req *mcp.CallToolRequest, args SetBreakpointArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := store.BreakpointOptions{Condition: args.Condition, Disabled: args.Disabled}
	if args.Generated != nil {
		gen := args.Generated.location()
		opts.Generated = &gen
	}

	loc := model.Location{SourceID: args.SourceID, Line: args.Line, Column: args.Column}
	bp, err := sessionCtx.Store.SetBreakpoint(ctx, loc, opts)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(bp)
}

func removeBreakpoint(ctx context.Context, req *mcp.CallToolRequest, args BreakpointIDArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := sessionCtx.Store.RemoveBreakpoint(ctx, args.ID); err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("removed %s", args.ID))
}

func disableBreakpoint(ctx context.Context, req *mcp.CallToolRequest, args DisableBreakpointArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	bp, err := sessionCtx.Store.DisableBreakpoint(ctx, args.ID, args.Disabled)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(bp)
}

func visibleBreakpoints(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(sessionCtx.Store.VisibleBreakpoints())
}

func pauseFrames(ctx context.Context, req *mcp.CallToolRequest, args PauseArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	var frames []model.Frame
	switch {
	case len(args.Frames) > 0:
		inputs := make([]store.FrameInput, len(args.Frames))
		for i, f := range args.Frames {
			inputs[i] = frameInput(f)
		}
		frames, err = sessionCtx.Store.Pause(inputs)
	case args.Stack != "":
		frames, err = sessionCtx.Store.PauseFromStack(args.Stack)
	default:
		err = errors.New("either frames or stack is required")
	}
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(frames)
}

func frameInput(f FrameArgs) store.FrameInput {
	gen := f.GeneratedLocation.location()
	in := store.FrameInput{
		DisplayName:       f.DisplayName,
		GeneratedLocation: gen,
	}
	if f.Location != nil {
		loc := f.Location.location()
		in.Location = &loc
	}

	scopes := make([]*model.Scope, len(f.Scopes))
	for i, s := range f.Scopes {
		scope := &model.Scope{
			Kind:     model.ScopeKind(s.Kind),
			Name:     s.Name,
			Bindings: make([]model.Binding, len(s.Bindings)),
		}
		for j, b := range s.Bindings {
			binding := model.Binding{Name: b.Name, Value: b.Value, Unavailable: b.Unavailable}
			if b.DeclLine != nil {
				decl := model.Location{SourceID: gen.SourceID, Line: *b.DeclLine}
				if b.DeclColumn != nil {
					decl.Column = *b.DeclColumn
				}
				binding.Decl = &decl
			}
			scope.Bindings[j] = binding
		}
		scopes[i] = scope
	}
	in.Scopes = model.Link(scopes)
	return in
}

func mapScopes(ctx context.Context, req *mcp.CallToolRequest, args MapScopesArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	mapping, err := sessionCtx.Store.MapScopes(args.FrameID)
	if err != nil {
		return nil, nil, err
	}

	if args.Wait {
		timeout := defaultWait
		if args.TimeoutMs > 0 {
			timeout = time.Duration(args.TimeoutMs) * time.Millisecond
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		// A timeout only ends the wait; the mapping keeps running
		_, _ = mapping.Wait(waitCtx)
	}

	result := mappedScopesResult{State: mapping.State(), Frame: mapping.Frame}
	if scope, ok := mapping.Result(); ok && scope != nil {
		result.Scopes = scope.Chain()
	}
	return jsonResult(result)
}

func resume(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := sessionCtx.Store.Resume(); err != nil {
		return nil, nil, err
	}
	return textResult("resumed")
}

func getDirectories(ctx context.Context, req *mcp.CallToolRequest, args GetDirectoriesArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	nodes, err := sessionCtx.Store.Directories(args.SourceID)
	if err != nil {
		return nil, nil, err
	}

	result := make([]directoryResult, len(nodes))
	for i, n := range nodes {
		result[i] = directoryResult{Type: string(n.Type), Name: n.Name, Path: n.Path}
	}
	return jsonResult(result)
}

func mapStack(ctx context.Context, req *mcp.CallToolRequest, args MapStackArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	mapped, err := sessionCtx.Store.MapStack(args.GeneratedID, args.Stack, args.Debug)
	if err != nil {
		return nil, nil, err
	}
	return textResult(mapped)
}
