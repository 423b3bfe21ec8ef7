// Package store owns the state of one debugging session: sources and their
// text, source maps, breakpoints, the selected source, the source tree and
// the current pause with its scope mappings.
//
// Store is safe for concurrent use. Scope mappings run on their own
// goroutines under the store's lifecycle context and report back through
// Dispatch, which drops results for frames that are no longer paused.
package store

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/breakpoints"
	"github.com/yousuf/scopemap-mcp/internal/model"
	"github.com/yousuf/scopemap-mcp/internal/pause"
	"github.com/yousuf/scopemap-mcp/internal/scopes"
	"github.com/yousuf/scopemap-mcp/internal/sourcemap"
	"github.com/yousuf/scopemap-mcp/internal/sourcetree"
	"github.com/yousuf/scopemap-mcp/internal/storage/sqlite"
)

var (
	ErrSourceNotFound     = errors.New("source not found")
	ErrBreakpointNotFound = errors.New("breakpoint not found")
	ErrNotPaused          = errors.New("not paused")
	ErrFrameNotFound      = errors.New("frame not found")
)

// PendingStore persists breakpoints by source url
type PendingStore interface {
	Save(ctx context.Context, pb sqlite.PendingBreakpoint) error
	ListByURL(ctx context.Context, url string) ([]sqlite.PendingBreakpoint, error)
	Delete(ctx context.Context, url string, line, column int) error
}

// Options configures a Store. Every field is optional.
type Options struct {
	Features   pause.Features
	Evaluator  scopes.Evaluator
	Pending    PendingStore
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Store is the per-session state container
type Store struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	maps      *sourcemap.Service
	projector *breakpoints.Projector
	mapper    *pause.Mapper
	pending   PendingStore
	client    *http.Client

	mu          sync.RWMutex
	sources     map[string]*model.Source
	sourceOrder []string
	texts       map[string]string
	selected    *model.Source
	tree        *sourcetree.Node
	parents     sourcetree.ParentMap

	bps       map[string]*model.Breakpoint
	bpOrder   []string
	bpVersion uint64
	visible   visibleMemo

	paused *pauseState

	// starting serializes starting scope mappings so a frame never gets two
	starting sync.Mutex
}

// visibleMemo holds the last VisibleBreakpoints result
type visibleMemo struct {
	valid    bool
	selected uint64
	version  uint64
	result   []*breakpoints.Display
}

type pauseState struct {
	frames   []model.Frame
	scopes   map[string]*model.Scope
	mappings map[string]*pause.Mapping
}

func (p *pauseState) frame(id string) (model.Frame, bool) {
	for _, f := range p.frames {
		if f.ID == id {
			return f, true
		}
	}
	return model.Frame{}, false
}

// New creates a store whose background work lives until Close or until
// parent is done
func New(parent context.Context, opts Options) *Store {
	ctx, cancel := context.WithCancel(parent)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	features := opts.Features
	if features == nil {
		features = pause.FeatureFlag(true)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	tree := sourcetree.NewRoot()
	s := &Store{
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		maps:      sourcemap.NewService(),
		projector: breakpoints.NewProjector(),
		pending:   opts.Pending,
		client:    client,
		sources:   make(map[string]*model.Source),
		texts:     make(map[string]string),
		tree:      tree,
		parents:   sourcetree.CreateParentMap(tree),
		bps:       make(map[string]*model.Breakpoint),
	}

	builder := scopes.NewBuilder(s, s.maps, opts.Evaluator)
	s.mapper = pause.NewMapper(s, builder, features, logger)
	return s
}

// Dispatch records a scope mapping while its frame belongs to the current
// pause. Mappings for any other frame are dropped.
func (s *Store) Dispatch(action pause.Action) {
	if action.Type != pause.ActionMapScopes || action.Mapping == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused == nil {
		s.logger.Debug("Discarding scope mapping, not paused", zap.String("frame", action.Frame.ID))
		return
	}
	if _, ok := s.paused.frame(action.Frame.ID); !ok {
		s.logger.Debug("Discarding scope mapping for stale frame", zap.String("frame", action.Frame.ID))
		return
	}
	s.paused.mappings[action.Frame.ID] = action.Mapping
}

// Close cancels in-flight mappings and clears the pause
func (s *Store) Close() {
	s.cancel()

	s.mu.Lock()
	s.paused = nil
	s.mu.Unlock()
}
