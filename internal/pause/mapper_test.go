package pause

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

type fakeHost struct {
	mu      sync.Mutex
	sources map[string]*model.Source
	loadErr error
	loaded  []string
	actions []Action
}

func (h *fakeHost) GetSource(id string) (*model.Source, bool) {
	src, ok := h.sources[id]
	return src, ok
}

func (h *fakeHost) LoadSourceText(_ context.Context, src *model.Source) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded = append(h.loaded, src.ID)
	return h.loadErr
}

func (h *fakeHost) Dispatch(action Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, action)
}

type fakeBuilder struct {
	mu    sync.Mutex
	calls int
	build func() (*model.Scope, error)
}

func (b *fakeBuilder) BuildMappedScopes(context.Context, model.Source, model.Frame, *model.Scope) (*model.Scope, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.build()
}

func (b *fakeBuilder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

var (
	genID  = "gen"
	origID = model.OriginalID("gen", "src/app.js")
	frame  = model.Frame{
		ID:                "frame-1",
		Location:          model.Location{SourceID: origID, Line: 3},
		GeneratedLocation: model.Location{SourceID: genID, Line: 1, Column: 10},
	}
	mapped = &model.Scope{Kind: model.ScopeFunction, Name: "main"}
)

type fixture struct {
	host    *fakeHost
	builder *fakeBuilder
	logs    *observer.ObservedLogs
	mapper  *Mapper
}

func newFixture(t *testing.T, enabled bool) *fixture {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	host := &fakeHost{sources: map[string]*model.Source{
		genID:  model.NewSource(genID, "http://example.com/bundle.js"),
		origID: model.NewSource(origID, "src/app.js"),
	}}
	builder := &fakeBuilder{build: func() (*model.Scope, error) { return mapped, nil }}

	return &fixture{
		host:    host,
		builder: builder,
		logs:    logs,
		mapper:  NewMapper(host, builder, FeatureFlag(enabled), zap.New(core)),
	}
}

func wait(t *testing.T, m *Mapping) *model.Scope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scope, err := m.Wait(ctx)
	require.NoError(t, err)
	return scope
}

func TestMapScopes_Success(t *testing.T) {
	f := newFixture(t, true)

	m := f.mapper.MapScopes(context.Background(), Ready(nil), frame)
	assert.Same(t, mapped, wait(t, m))
	assert.Equal(t, StateResolved, m.State())

	require.Len(t, f.host.actions, 1)
	assert.Equal(t, ActionMapScopes, f.host.actions[0].Type)
	assert.Equal(t, frame, f.host.actions[0].Frame)
	assert.Same(t, m, f.host.actions[0].Mapping)
	assert.Equal(t, []string{origID}, f.host.loaded)
	assert.Equal(t, 0, f.logs.Len())
}

func TestMapScopes_ShortCircuits(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		mutate  func(h *fakeHost)
	}{
		{"feature disabled", false, func(*fakeHost) {}},
		{"missing original source", true, func(h *fakeHost) { delete(h.sources, origID) }},
		{"missing generated source", true, func(h *fakeHost) { delete(h.sources, genID) }},
		{"wasm", true, func(h *fakeHost) { h.sources[genID].IsWasm = true }},
		{"pretty printed", true, func(h *fakeHost) { h.sources[origID].IsPrettyPrinted = true }},
		{"original is generated", true, func(h *fakeHost) { h.sources[origID] = model.NewSource("plain.js", "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.enabled)
			tt.mutate(f.host)

			m := f.mapper.MapScopes(context.Background(), Ready(nil), frame)
			assert.Nil(t, wait(t, m))
			assert.Equal(t, 0, f.builder.callCount())
			assert.Empty(t, f.host.loaded)
			assert.Len(t, f.host.actions, 1)
			assert.Equal(t, 0, f.logs.Len())
		})
	}
}

func TestMapScopes_Failures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		scopes PendingScopes
		built  int
	}{
		{
			name: "builder error",
			setup: func(f *fixture) {
				f.builder.build = func() (*model.Scope, error) { return nil, errors.New("boom") }
			},
			scopes: Ready(nil),
			built:  1,
		},
		{
			name: "builder panic",
			setup: func(f *fixture) {
				f.builder.build = func() (*model.Scope, error) { panic("unexpected") }
			},
			scopes: Ready(nil),
			built:  1,
		},
		{
			name:   "text load error",
			setup:  func(f *fixture) { f.host.loadErr = errors.New("404") },
			scopes: Ready(nil),
		},
		{
			name:  "pending scopes error",
			setup: func(*fixture) {},
			scopes: func(context.Context) (*model.Scope, error) {
				return nil, errors.New("frame gone")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			tt.setup(f)

			m := f.mapper.MapScopes(context.Background(), tt.scopes, frame)
			assert.Nil(t, wait(t, m))
			assert.Equal(t, tt.built, f.builder.callCount())

			require.Equal(t, 1, f.logs.Len())
			entry := f.logs.All()[0]
			assert.Equal(t, zap.WarnLevel, entry.Level)
			assert.Equal(t, "Failed to map scopes", entry.Message)
			assert.Equal(t, "frame-1", entry.ContextMap()["frame"])
		})
	}
}

func TestMapScopes_DispatchBeforeWork(t *testing.T) {
	f := newFixture(t, true)
	release := make(chan struct{})
	f.builder.build = func() (*model.Scope, error) {
		<-release
		return mapped, nil
	}

	m := f.mapper.MapScopes(context.Background(), Ready(nil), frame)
	require.Len(t, f.host.actions, 1)
	assert.Equal(t, StatePending, m.State())
	_, ok := m.Result()
	assert.False(t, ok)

	// Wait gives up with the caller's context but the mapping carries on
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.Same(t, mapped, wait(t, m))
	scope, ok := m.Result()
	assert.True(t, ok)
	assert.Same(t, mapped, scope)
}

func TestResolved(t *testing.T) {
	m := Resolved(frame, mapped)
	assert.Equal(t, StateResolved, m.State())
	<-m.Done()
	scope, ok := m.Result()
	assert.True(t, ok)
	assert.Same(t, mapped, scope)
}
