package scopes

import (
	"context"
	"errors"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousuf/scopemap-mcp/internal/model"
	"github.com/yousuf/scopemap-mcp/internal/sourcemap"
)

const originalText = `let count = 0;
function add(a, b) {
  const total = a + b;
  if (total > 10) {
    let big = true;
    var hoisted = 1;
    return big;
  }
  return total;
}
`

type fakeTexts map[string]string

func (f fakeTexts) SourceText(id string) (string, bool) {
	text, ok := f[id]
	return text, ok
}

type mapped struct {
	loc  model.Location
	name string
}

type fakeLocator struct {
	generatedID string
	positions   map[model.Location]mapped
}

func (f *fakeLocator) HasMap(id string) bool { return id == f.generatedID }

func (f *fakeLocator) OriginalLocation(loc model.Location) (model.Location, string, bool) {
	m, ok := f.positions[loc]
	return m.loc, m.name, ok
}

type fakeEvaluator struct {
	values map[string]any
	calls  []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ model.Frame, expression string, _ *model.Scope) (any, error) {
	f.calls = append(f.calls, expression)
	if v, ok := f.values[expression]; ok {
		return v, nil
	}
	return nil, errors.New("ReferenceError: " + expression + " is not defined")
}

func sitterPoint(line, col int) sitter.Point {
	return sitter.Point{Row: uint32(line - 1), Column: uint32(col)}
}

func genLoc(col int) *model.Location {
	return &model.Location{SourceID: "gen", Line: 1, Column: col}
}

func setup(t *testing.T) (*Builder, *model.Source, *model.Scope, *fakeEvaluator) {
	t.Helper()

	src := model.NewSource(model.OriginalID("gen", "src/add.js"), "src/add.js")
	orig := func(line int) model.Location { return model.Location{SourceID: src.ID, Line: line} }

	locator := &fakeLocator{
		generatedID: "gen",
		positions: map[model.Location]mapped{
			*genLoc(4):  {orig(1), "count"},
			*genLoc(20): {orig(2), "a"},
			*genLoc(22): {orig(2), "b"},
			*genLoc(30): {orig(3), "total"},
			*genLoc(50): {orig(5), "big"},
		},
	}
	eval := &fakeEvaluator{values: map[string]any{"add": "[function add]"}}

	generated := model.Link([]*model.Scope{
		{Kind: model.ScopeBlock, Bindings: []model.Binding{{Name: "h", Value: true, Decl: genLoc(50)}}},
		{Kind: model.ScopeFunction, Name: "d", Bindings: []model.Binding{
			{Name: "e", Value: 3, Decl: genLoc(20)},
			{Name: "f", Value: 9, Decl: genLoc(22)},
			{Name: "g", Value: 12, Decl: genLoc(30)},
		}},
		{Kind: model.ScopeModule, Bindings: []model.Binding{{Name: "c", Value: 0, Decl: genLoc(4)}, {Name: "d"}}},
		{Kind: model.ScopeGlobal, Bindings: []model.Binding{{Name: "window", Value: "[object Window]"}}},
	})

	b := NewBuilder(fakeTexts{src.ID: originalText}, locator, eval)
	return b, src, generated, eval
}

func bindingMap(scope *model.Scope) map[string]model.Binding {
	out := make(map[string]model.Binding, len(scope.Bindings))
	for _, b := range scope.Bindings {
		out[b.Name] = b
	}
	return out
}

func TestBuildMappedScopes_InsideBlock(t *testing.T) {
	b, src, generated, eval := setup(t)
	frame := model.Frame{
		ID:                "f1",
		Location:          model.Location{SourceID: src.ID, Line: 7, Column: 4},
		GeneratedLocation: model.Location{SourceID: "gen", Line: 1, Column: 60},
	}

	scope, err := b.BuildMappedScopes(context.Background(), *src, frame, generated)
	require.NoError(t, err)

	chain := scope.Chain()
	require.Len(t, chain, 4)

	assert.Equal(t, model.ScopeBlock, chain[0].Kind)
	assert.Equal(t, []model.Binding{{Name: "big", Value: true}}, chain[0].Bindings)

	fn := chain[1]
	assert.Equal(t, model.ScopeFunction, fn.Kind)
	assert.Equal(t, "add", fn.Name)
	require.Len(t, fn.Bindings, 4)
	assert.Equal(t, []string{"a", "b", "total", "hoisted"},
		[]string{fn.Bindings[0].Name, fn.Bindings[1].Name, fn.Bindings[2].Name, fn.Bindings[3].Name})
	fnBindings := bindingMap(fn)
	assert.Equal(t, 3, fnBindings["a"].Value)
	assert.Equal(t, 9, fnBindings["b"].Value)
	assert.Equal(t, 12, fnBindings["total"].Value)
	assert.True(t, fnBindings["hoisted"].Unavailable)

	module := chain[2]
	assert.Equal(t, model.ScopeModule, module.Kind)
	moduleBindings := bindingMap(module)
	assert.Equal(t, 0, moduleBindings["count"].Value)
	assert.Equal(t, "[function add]", moduleBindings["add"].Value)

	global := chain[3]
	assert.Equal(t, model.ScopeGlobal, global.Kind)
	assert.Equal(t, "window", global.Bindings[0].Name)
	assert.Nil(t, global.Parent)

	assert.ElementsMatch(t, []string{"hoisted", "add"}, eval.calls)
}

func TestBuildMappedScopes_OutsideBlock(t *testing.T) {
	b, src, generated, _ := setup(t)
	frame := model.Frame{
		Location:          model.Location{SourceID: src.ID, Line: 9, Column: 2},
		GeneratedLocation: model.Location{SourceID: "gen", Line: 1, Column: 70},
	}

	scope, err := b.BuildMappedScopes(context.Background(), *src, frame, generated)
	require.NoError(t, err)

	chain := scope.Chain()
	require.Len(t, chain, 3)
	assert.Equal(t, model.ScopeFunction, chain[0].Kind)
	assert.Equal(t, model.ScopeModule, chain[1].Kind)
	assert.Equal(t, model.ScopeGlobal, chain[2].Kind)
}

func TestBuildMappedScopes_SameNameFallback(t *testing.T) {
	src := model.NewSource(model.OriginalID("gen", "src/a.js"), "src/a.js")
	locator := &fakeLocator{generatedID: "gen"}
	b := NewBuilder(fakeTexts{src.ID: "function f(x) {\n  return x;\n}\n"}, locator, nil)

	generated := model.Link([]*model.Scope{
		{Kind: model.ScopeFunction, Bindings: []model.Binding{{Name: "x", Value: "kept"}}},
	})
	frame := model.Frame{
		Location:          model.Location{SourceID: src.ID, Line: 2, Column: 2},
		GeneratedLocation: model.Location{SourceID: "gen", Line: 1},
	}

	scope, err := b.BuildMappedScopes(context.Background(), *src, frame, generated)
	require.NoError(t, err)

	assert.Equal(t, []model.Binding{{Name: "x", Value: "kept"}}, scope.Bindings)
	// Module scope declares f, which nothing can resolve without an evaluator
	assert.Equal(t, []model.Binding{{Name: "f", Unavailable: true}}, scope.Parent.Bindings)
	// No generated global scope, so a synthetic one ends the chain
	assert.Equal(t, model.ScopeGlobal, scope.Root().Kind)
}

func TestBuildMappedScopes_Patterns(t *testing.T) {
	text := `const { a, b: renamed, ...rest } = obj;
const [first, , third = 3] = list;
try {
  run();
} catch (err) {
  for (const item of items) {
    const f = (p, { q }) => p + q;
  }
}
`
	src := model.NewSource(model.OriginalID("gen", "src/p.js"), "src/p.js")
	b := NewBuilder(fakeTexts{src.ID: text}, &fakeLocator{generatedID: "gen"}, nil)

	module, err := b.lexicalScopes(context.Background(), *src)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "renamed", "rest", "first", "third"}, module.bindings)

	// Inside the arrow function body on line 7
	inner := module.innermost(sitterPoint(7, 28))
	assert.Equal(t, model.ScopeFunction, inner.kind)
	assert.Equal(t, []string{"p", "q"}, inner.bindings)

	var names [][]string
	for s := inner.parent; s != nil; s = s.parent {
		if len(s.bindings) > 0 {
			names = append(names, s.bindings)
		}
	}
	assert.Contains(t, names, []string{"f"})
	assert.Contains(t, names, []string{"item"})
	assert.Contains(t, names, []string{"err"})
}

func TestBuildMappedScopes_Errors(t *testing.T) {
	b, src, generated, _ := setup(t)
	frame := model.Frame{
		Location:          model.Location{SourceID: src.ID, Line: 1},
		GeneratedLocation: model.Location{SourceID: "gen", Line: 1},
	}

	t.Run("no source map", func(t *testing.T) {
		f := frame
		f.GeneratedLocation.SourceID = "other"
		_, err := b.BuildMappedScopes(context.Background(), *src, f, generated)
		assert.ErrorIs(t, err, sourcemap.ErrNoSourceMap)
	})

	t.Run("no text", func(t *testing.T) {
		missing := model.NewSource(model.OriginalID("gen", "src/missing.js"), "src/missing.js")
		_, err := b.BuildMappedScopes(context.Background(), *missing, frame, generated)
		assert.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := b.BuildMappedScopes(ctx, *src, frame, generated)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuildMappedScopes_ParseCache(t *testing.T) {
	b, src, generated, _ := setup(t)
	frame := model.Frame{
		Location:          model.Location{SourceID: src.ID, Line: 1},
		GeneratedLocation: model.Location{SourceID: "gen", Line: 1},
	}

	_, err := b.BuildMappedScopes(context.Background(), *src, frame, generated)
	require.NoError(t, err)
	_, err = b.BuildMappedScopes(context.Background(), *src, frame, generated)
	require.NoError(t, err)
	assert.Len(t, b.parsed, 1)

	// A replaced source is parsed again
	_, err = b.BuildMappedScopes(context.Background(), *src.Replace(), frame, generated)
	require.NoError(t, err)
	assert.Len(t, b.parsed, 2)
}
