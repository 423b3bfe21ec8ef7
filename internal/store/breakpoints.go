package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/breakpoints"
	"github.com/yousuf/scopemap-mcp/internal/model"
	"github.com/yousuf/scopemap-mcp/internal/storage/sqlite"
)

// BreakpointOptions carries the optional settings of a new breakpoint
type BreakpointOptions struct {
	Condition string
	Disabled  bool

	// Generated is the generated position of an original location. The
	// source map cannot be walked backwards, so it comes from the client.
	Generated *model.Location
}

// SetBreakpoint sets a breakpoint at loc, replacing any breakpoint with the
// same id. A generated loc is mapped to its original position when the
// source has a map.
func (s *Store) SetBreakpoint(ctx context.Context, loc model.Location, opts BreakpointOptions) (*model.Breakpoint, error) {
	if _, ok := s.GetSource(loc.SourceID); !ok {
		return nil, fmt.Errorf("source %q: %w", loc.SourceID, ErrSourceNotFound)
	}

	var location, generated *model.Location
	if model.IsGeneratedID(loc.SourceID) {
		gen := loc
		generated = &gen
		original := loc
		if mapped, _, ok := s.maps.OriginalLocation(loc); ok {
			original = mapped
		}
		location = &original
	} else {
		original := loc
		location = &original
		if opts.Generated != nil {
			if !model.IsGeneratedID(opts.Generated.SourceID) {
				return nil, fmt.Errorf("location %s is not in a generated source", opts.Generated)
			}
			gen := *opts.Generated
			generated = &gen
		}
	}

	bp := model.NewBreakpoint(location, generated)
	bp.Condition = opts.Condition
	bp.Disabled = opts.Disabled

	s.mu.Lock()
	s.putBreakpoint(bp)
	s.mu.Unlock()

	s.persist(ctx, bp)
	return bp, nil
}

// RemoveBreakpoint removes a breakpoint and forgets its pending record
func (s *Store) RemoveBreakpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	bp, ok := s.bps[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("breakpoint %q: %w", id, ErrBreakpointNotFound)
	}
	delete(s.bps, id)
	for i, bpID := range s.bpOrder {
		if bpID == id {
			s.bpOrder = append(s.bpOrder[:i], s.bpOrder[i+1:]...)
			break
		}
	}
	s.bpVersion++
	s.projector.Evict(bp)
	sourceURL := s.urlOf(bp.Location)
	s.mu.Unlock()

	if s.pending == nil || sourceURL == "" {
		return nil
	}
	if err := s.pending.Delete(ctx, sourceURL, bp.Location.Line, bp.Location.Column); err != nil {
		s.logger.Warn("Failed to delete pending breakpoint", zap.String("breakpoint", id), zap.Error(err))
	}
	return nil
}

// DisableBreakpoint enables or disables a breakpoint
func (s *Store) DisableBreakpoint(ctx context.Context, id string, disabled bool) (*model.Breakpoint, error) {
	s.mu.Lock()
	prev, ok := s.bps[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("breakpoint %q: %w", id, ErrBreakpointNotFound)
	}
	bp := prev.Replace()
	bp.Disabled = disabled
	s.putBreakpoint(bp)
	s.mu.Unlock()

	s.persist(ctx, bp)
	return bp, nil
}

// Breakpoints returns every breakpoint in the order they were first set
func (s *Store) Breakpoints() []*model.Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.breakpointList()
}

// VisibleBreakpoints returns the display records of the breakpoints in the
// selected source, or nil when nothing is selected. The result is reused
// until the selection or the breakpoints change.
func (s *Store) VisibleBreakpoints() []*breakpoints.Display {
	s.mu.RLock()
	selected := s.selected
	version := s.bpVersion
	if memo := s.visible; memo.valid && memo.selected == tokenOf(selected) && memo.version == version {
		s.mu.RUnlock()
		return memo.result
	}
	bps := s.breakpointList()
	s.mu.RUnlock()

	result := s.projector.VisibleBreakpoints(selected, bps)

	s.mu.Lock()
	if s.bpVersion == version && s.selected == selected {
		s.visible = visibleMemo{valid: true, selected: tokenOf(selected), version: version, result: result}
	}
	s.mu.Unlock()
	return result
}

func tokenOf(src *model.Source) uint64 {
	if src == nil {
		return 0
	}
	return src.Token
}

// putBreakpoint stores bp, evicting the projections of the breakpoint it
// replaces. Callers hold mu.
func (s *Store) putBreakpoint(bp *model.Breakpoint) {
	if prev, ok := s.bps[bp.ID]; ok {
		s.projector.Evict(prev)
	} else {
		s.bpOrder = append(s.bpOrder, bp.ID)
	}
	s.bps[bp.ID] = bp
	s.bpVersion++
}

func (s *Store) breakpointList() []*model.Breakpoint {
	list := make([]*model.Breakpoint, 0, len(s.bpOrder))
	for _, id := range s.bpOrder {
		list = append(list, s.bps[id])
	}
	return list
}

// urlOf returns the url of the source holding loc. Callers hold mu.
func (s *Store) urlOf(loc *model.Location) string {
	if loc == nil {
		return ""
	}
	if src, ok := s.sources[loc.SourceID]; ok {
		return src.URL
	}
	return ""
}

// persist records bp as pending under its source url
func (s *Store) persist(ctx context.Context, bp *model.Breakpoint) {
	if s.pending == nil || bp.Location == nil {
		return
	}

	s.mu.RLock()
	sourceURL := s.urlOf(bp.Location)
	s.mu.RUnlock()
	if sourceURL == "" {
		return
	}

	pb := sqlite.PendingBreakpoint{
		URL:       sourceURL,
		Line:      bp.Location.Line,
		Column:    bp.Location.Column,
		Condition: bp.Condition,
		Disabled:  bp.Disabled,
	}
	if err := s.pending.Save(ctx, pb); err != nil {
		s.logger.Warn("Failed to save pending breakpoint", zap.String("breakpoint", bp.ID), zap.Error(err))
	}
}

// restorePending sets the breakpoints recorded for the url of src
func (s *Store) restorePending(ctx context.Context, src *model.Source) {
	if s.pending == nil || src.URL == "" {
		return
	}

	pending, err := s.pending.ListByURL(ctx, src.URL)
	if err != nil {
		s.logger.Warn("Failed to list pending breakpoints", zap.String("url", src.URL), zap.Error(err))
		return
	}

	for _, pb := range pending {
		loc := model.Location{SourceID: src.ID, Line: pb.Line, Column: pb.Column}
		opts := BreakpointOptions{Condition: pb.Condition, Disabled: pb.Disabled}
		if _, err := s.SetBreakpoint(ctx, loc, opts); err != nil {
			s.logger.Warn("Failed to restore pending breakpoint",
				zap.Stringer("location", loc),
				zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("Restored pending breakpoints", zap.String("url", src.URL), zap.Int("count", len(pending)))
	}
}
