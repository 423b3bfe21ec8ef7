// Package scopes rebuilds the original-source scope chain of a paused frame
// from its generated-code scopes.
//
// The original source is parsed into lexical scopes. Each original binding
// is then resolved against the generated bindings, first through the names
// recorded in the source map, then by identical name, and finally by
// evaluating the name in the paused frame.
package scopes

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/yousuf/scopemap-mcp/internal/model"
	"github.com/yousuf/scopemap-mcp/internal/sourcemap"
)

// TextSource provides the loaded text of a source
type TextSource interface {
	SourceText(sourceID string) (string, bool)
}

// Locator maps generated positions to original ones
type Locator interface {
	HasMap(generatedID string) bool
	OriginalLocation(loc model.Location) (model.Location, string, bool)
}

// Evaluator evaluates an expression in the context of a paused frame
type Evaluator interface {
	Evaluate(ctx context.Context, frame model.Frame, expression string, generated *model.Scope) (any, error)
}

type parseKey struct {
	sourceID string
	token    uint64
}

// Builder builds original scope chains. Parsed sources are cached per
// source identity.
type Builder struct {
	texts TextSource
	maps  Locator
	eval  Evaluator

	mu     sync.RWMutex
	parsed map[parseKey]*lexicalScope
}

// NewBuilder creates a scope builder. eval may be nil, in which case
// bindings that cannot be matched by name are reported as unavailable.
func NewBuilder(texts TextSource, maps Locator, eval Evaluator) *Builder {
	return &Builder{
		texts:  texts,
		maps:   maps,
		eval:   eval,
		parsed: make(map[parseKey]*lexicalScope),
	}
}

// BuildMappedScopes returns the original scope chain for frame, innermost
// first, terminated by the generated global scope.
func (b *Builder) BuildMappedScopes(ctx context.Context, src model.Source, frame model.Frame, generated *model.Scope) (*model.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	generatedID := frame.GeneratedLocation.SourceID
	if !b.maps.HasMap(generatedID) {
		return nil, fmt.Errorf("source %q: %w", generatedID, sourcemap.ErrNoSourceMap)
	}

	module, err := b.lexicalScopes(ctx, src)
	if err != nil {
		return nil, err
	}

	pos := sitter.Point{Row: uint32(max(frame.Location.Line-1, 0)), Column: uint32(max(frame.Location.Column, 0))}
	innermost := module.innermost(pos)

	renamed, renamedAway := b.renames(src.ID, generated)

	var chain []*model.Scope
	for lex := innermost; lex != nil; lex = lex.parent {
		if lex.kind == model.ScopeBlock && len(lex.bindings) == 0 {
			continue
		}

		scope := &model.Scope{
			Kind:     lex.kind,
			Name:     lex.name,
			Bindings: make([]model.Binding, 0, len(lex.bindings)),
		}
		for _, name := range lex.bindings {
			scope.Bindings = append(scope.Bindings, b.resolve(ctx, frame, name, generated, renamed, renamedAway))
		}
		chain = append(chain, scope)
	}

	chain = append(chain, globalScope(generated))
	return model.Link(chain), nil
}

func (b *Builder) lexicalScopes(ctx context.Context, src model.Source) (*lexicalScope, error) {
	key := parseKey{sourceID: src.ID, token: src.Token}

	b.mu.RLock()
	module, ok := b.parsed[key]
	b.mu.RUnlock()
	if ok {
		return module, nil
	}

	text, ok := b.texts.SourceText(src.ID)
	if !ok {
		return nil, fmt.Errorf("source %q has no text loaded", src.ID)
	}

	module, err := parseScopes(ctx, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", src.ID, err)
	}

	b.mu.Lock()
	b.parsed[key] = module
	b.mu.Unlock()
	return module, nil
}

// renames maps original names to the generated bindings declared at the
// positions the source map names them at. renamedAway holds the generated
// names that stand for a different original name.
func (b *Builder) renames(sourceID string, generated *model.Scope) (map[string]model.Binding, map[string]bool) {
	renamed := make(map[string]model.Binding)
	renamedAway := make(map[string]bool)

	for scope := generated; scope != nil; scope = scope.Parent {
		if scope.Kind == model.ScopeGlobal {
			continue
		}
		for _, binding := range scope.Bindings {
			if binding.Decl == nil {
				continue
			}
			loc, name, ok := b.maps.OriginalLocation(*binding.Decl)
			if !ok || name == "" || loc.SourceID != sourceID {
				continue
			}
			if _, seen := renamed[name]; !seen {
				renamed[name] = binding
			}
			if name != binding.Name {
				renamedAway[binding.Name] = true
			}
		}
	}
	return renamed, renamedAway
}

func (b *Builder) resolve(ctx context.Context, frame model.Frame, name string, generated *model.Scope, renamed map[string]model.Binding, renamedAway map[string]bool) model.Binding {
	if gb, ok := renamed[name]; ok {
		return model.Binding{Name: name, Value: gb.Value, Unavailable: gb.Unavailable}
	}

	if !renamedAway[name] {
		if gb, ok := generated.Lookup(name); ok {
			return model.Binding{Name: name, Value: gb.Value, Unavailable: gb.Unavailable}
		}
	}

	if b.eval != nil {
		if value, err := b.eval.Evaluate(ctx, frame, name, generated); err == nil {
			return model.Binding{Name: name, Value: value}
		}
	}

	return model.Binding{Name: name, Unavailable: true}
}

// globalScope detaches the generated global scope so the original chain can
// end with it
func globalScope(generated *model.Scope) *model.Scope {
	root := generated.Root()
	if root == nil || root.Kind != model.ScopeGlobal {
		return &model.Scope{Kind: model.ScopeGlobal, Bindings: []model.Binding{}}
	}
	cp := *root
	cp.Parent = nil
	return &cp
}
