// Package pause maps the scopes of paused frames back to original sources.
package pause

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// ActionMapScopes is the type of the action announcing a scope mapping
const ActionMapScopes = "MAP_SCOPES"

// Action is dispatched once per MapScopes call, before any work starts
type Action struct {
	Type    string
	Frame   model.Frame
	Mapping *Mapping
}

// SourceStore looks up sources by id
type SourceStore interface {
	GetSource(id string) (*model.Source, bool)
}

// TextLoader makes the text of a source available to the scope builder
type TextLoader interface {
	LoadSourceText(ctx context.Context, src *model.Source) error
}

// Sink receives dispatched actions
type Sink interface {
	Dispatch(action Action)
}

// Host is the state a Mapper reads from and reports to
type Host interface {
	SourceStore
	TextLoader
	Sink
}

// ScopeBuilder reconstructs the original scope chain of a frame
type ScopeBuilder interface {
	BuildMappedScopes(ctx context.Context, src model.Source, frame model.Frame, generated *model.Scope) (*model.Scope, error)
}

// Features exposes the feature switches the mapper honours
type Features interface {
	MapScopesEnabled() bool
}

// FeatureFlag is a static Features value
type FeatureFlag bool

func (f FeatureFlag) MapScopesEnabled() bool { return bool(f) }

// PendingScopes yields the generated scope chain of a frame once the
// debuggee has produced it
type PendingScopes func(ctx context.Context) (*model.Scope, error)

// Ready wraps an already known scope chain
func Ready(scope *model.Scope) PendingScopes {
	return func(context.Context) (*model.Scope, error) {
		return scope, nil
	}
}

// Mapper turns generated frame scopes into original ones
type Mapper struct {
	host     Host
	builder  ScopeBuilder
	features Features
	logger   *zap.Logger
}

// NewMapper creates a mapper
func NewMapper(host Host, builder ScopeBuilder, features Features, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{
		host:     host,
		builder:  builder,
		features: features,
		logger:   logger,
	}
}

// MapScopes dispatches a MAP_SCOPES action for frame and starts mapping its
// scopes in the background. The returned mapping resolves to nil whenever
// the frame cannot or should not be mapped; failures are logged, never
// returned.
func (m *Mapper) MapScopes(ctx context.Context, scopes PendingScopes, frame model.Frame) *Mapping {
	generated, _ := m.host.GetSource(frame.GeneratedLocation.SourceID)
	source, _ := m.host.GetSource(frame.Location.SourceID)

	mapping := newMapping(frame)
	m.host.Dispatch(Action{Type: ActionMapScopes, Frame: frame, Mapping: mapping})

	go m.run(ctx, mapping, scopes, source, generated)
	return mapping
}

func (m *Mapper) run(ctx context.Context, mapping *Mapping, scopes PendingScopes, source, generated *model.Source) {
	defer func() {
		if r := recover(); r != nil {
			m.fail(mapping.Frame, fmt.Errorf("panic: %v", r))
			mapping.resolve(nil)
		}
	}()

	mapping.resolve(m.build(ctx, mapping.Frame, scopes, source, generated))
}

func (m *Mapper) build(ctx context.Context, frame model.Frame, scopes PendingScopes, source, generated *model.Source) *model.Scope {
	if !m.features.MapScopesEnabled() ||
		source == nil ||
		generated == nil ||
		generated.IsWasm ||
		source.IsPrettyPrinted ||
		source.IsGenerated() {
		return nil
	}

	if err := m.host.LoadSourceText(ctx, source); err != nil {
		m.fail(frame, fmt.Errorf("failed to load source text: %w", err))
		return nil
	}

	var generatedScopes *model.Scope
	if scopes != nil {
		var err error
		generatedScopes, err = scopes(ctx)
		if err != nil {
			m.fail(frame, fmt.Errorf("failed to get frame scopes: %w", err))
			return nil
		}
	}

	scope, err := m.builder.BuildMappedScopes(ctx, *source, frame, generatedScopes)
	if err != nil {
		m.fail(frame, err)
		return nil
	}
	return scope
}

func (m *Mapper) fail(frame model.Frame, err error) {
	m.logger.Warn("Failed to map scopes",
		zap.String("frame", frame.ID),
		zap.Stringer("location", frame.Location),
		zap.Error(err))
}
