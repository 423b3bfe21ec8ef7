package breakpoints

import (
	"sync"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// Display is the minimal record a view needs to render a breakpoint
type Display struct {
	Location  model.Location `json:"location"`
	Condition string         `json:"condition,omitempty"`
	Loading   bool           `json:"loading,omitempty"`
	Disabled  bool           `json:"disabled,omitempty"`
	Hidden    bool           `json:"hidden,omitempty"`
}

type cacheKey struct {
	breakpoint uint64
	source     uint64
}

// Projector filters breakpoints down to the selected source and formats them.
//
// Display records are memoized per (breakpoint, selected source) identity
// token, so unchanged inputs always yield the same *Display. Entries for a
// replaced breakpoint are dropped with Evict.
type Projector struct {
	mu    sync.RWMutex
	cache map[cacheKey]*Display
}

// NewProjector creates a projector with an empty cache
func NewProjector() *Projector {
	return &Projector{
		cache: make(map[cacheKey]*Display),
	}
}

// VisibleBreakpoints returns the display records of the breakpoints that
// belong to selected, in input order. It returns nil when nothing is selected.
func (p *Projector) VisibleBreakpoints(selected *model.Source, bps []*model.Breakpoint) []*Display {
	if selected == nil {
		return nil
	}

	isGenerated := model.IsGeneratedID(selected.ID)
	visible := make([]*Display, 0, len(bps))
	for _, bp := range bps {
		loc := EffectiveLocation(bp, isGenerated)
		if loc == nil || loc.SourceID != selected.ID {
			continue
		}
		visible = append(visible, p.format(bp, selected, *loc))
	}
	return visible
}

// EffectiveLocation picks the location used to test membership in a source.
// Generated sources prefer the generated location and fall back to the
// original one; original sources always use the original location.
func EffectiveLocation(bp *model.Breakpoint, isGeneratedSource bool) *model.Location {
	if bp == nil {
		return nil
	}
	if isGeneratedSource && bp.GeneratedLocation != nil {
		return bp.GeneratedLocation
	}
	return bp.Location
}

// Evict drops every cached record built from bp
func (p *Projector) Evict(bp *model.Breakpoint) {
	if bp == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.cache {
		if key.breakpoint == bp.Token {
			delete(p.cache, key)
		}
	}
}

// EvictSource drops every cached record built for the selected source src
func (p *Projector) EvictSource(src *model.Source) {
	if src == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.cache {
		if key.source == src.Token {
			delete(p.cache, key)
		}
	}
}

// Len returns the number of cached records
func (p *Projector) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

func (p *Projector) format(bp *model.Breakpoint, selected *model.Source, loc model.Location) *Display {
	// Values without identity tokens cannot be memoized safely
	if bp.Token == 0 || selected.Token == 0 {
		return newDisplay(bp, loc)
	}

	key := cacheKey{breakpoint: bp.Token, source: selected.Token}

	p.mu.RLock()
	d, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return d
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if d, ok := p.cache[key]; ok {
		return d
	}

	d = newDisplay(bp, loc)
	p.cache[key] = d
	return d
}

func newDisplay(bp *model.Breakpoint, loc model.Location) *Display {
	return &Display{
		Location:  loc,
		Condition: bp.Condition,
		Loading:   bp.Loading,
		Disabled:  bp.Disabled,
		Hidden:    bp.Hidden,
	}
}
