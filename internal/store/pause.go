package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/model"
	"github.com/yousuf/scopemap-mcp/internal/pause"
	"github.com/yousuf/scopemap-mcp/internal/sourcemap"
)

// FrameInput describes one paused frame as reported by the debuggee
type FrameInput struct {
	DisplayName       string
	GeneratedLocation model.Location

	// Location overrides the original location derived from the source map
	Location *model.Location

	// Scopes is the generated scope chain of the frame, innermost first
	Scopes *model.Scope
}

// Pause replaces the current pause with frames, top frame first, and
// starts mapping the scopes of the top frame
func (s *Store) Pause(frames []FrameInput) ([]model.Frame, error) {
	if len(frames) == 0 {
		return nil, errors.New("pause requires at least one frame")
	}

	state := &pauseState{
		frames:   make([]model.Frame, 0, len(frames)),
		scopes:   make(map[string]*model.Scope, len(frames)),
		mappings: make(map[string]*pause.Mapping),
	}
	for _, in := range frames {
		frame := model.Frame{
			ID:                uuid.New().String(),
			DisplayName:       in.DisplayName,
			Location:          in.GeneratedLocation,
			GeneratedLocation: in.GeneratedLocation,
		}
		if in.Location != nil {
			frame.Location = *in.Location
		} else if loc, _, ok := s.maps.OriginalLocation(in.GeneratedLocation); ok {
			frame.Location = loc
		}
		state.frames = append(state.frames, frame)
		state.scopes[frame.ID] = in.Scopes
	}

	s.mu.Lock()
	if s.paused != nil {
		s.logger.Debug("Replacing previous pause", zap.Int("frames", len(s.paused.frames)))
	}
	s.paused = state
	s.mu.Unlock()

	top := state.frames[0]
	s.starting.Lock()
	s.mapper.MapScopes(s.ctx, pause.Ready(state.scopes[top.ID]), top)
	s.starting.Unlock()

	out := make([]model.Frame, len(state.frames))
	copy(out, state.frames)
	return out, nil
}

// PauseFromStack pauses with frames parsed from a generated stack trace.
// Frames whose script url matches no known source are skipped.
func (s *Store) PauseFromStack(stack string) ([]model.Frame, error) {
	var frames []FrameInput
	for _, sf := range sourcemap.ParseStack(stack) {
		src, ok := s.SourceByURL(sf.FileName)
		if !ok {
			continue
		}
		loc, ok := sf.GeneratedLocation(src.ID)
		if !ok {
			continue
		}
		frames = append(frames, FrameInput{DisplayName: sf.FunctionName, GeneratedLocation: loc})
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("no stack frame matches a known source: %w", ErrSourceNotFound)
	}
	return s.Pause(frames)
}

// Frames returns the frames of the current pause
func (s *Store) Frames() ([]model.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.paused == nil {
		return nil, ErrNotPaused
	}
	out := make([]model.Frame, len(s.paused.frames))
	copy(out, s.paused.frames)
	return out, nil
}

// MapScopes returns the scope mapping of a paused frame, starting one when
// none exists yet
func (s *Store) MapScopes(frameID string) (*pause.Mapping, error) {
	s.starting.Lock()
	defer s.starting.Unlock()

	s.mu.RLock()
	if s.paused == nil {
		s.mu.RUnlock()
		return nil, ErrNotPaused
	}
	frame, ok := s.paused.frame(frameID)
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("frame %q: %w", frameID, ErrFrameNotFound)
	}
	mapping := s.paused.mappings[frameID]
	generated := s.paused.scopes[frameID]
	s.mu.RUnlock()

	if mapping != nil {
		return mapping, nil
	}
	return s.mapper.MapScopes(s.ctx, pause.Ready(generated), frame), nil
}

// MappedScopes returns the recorded scope mapping of a paused frame. The
// mapping is nil when none was started.
func (s *Store) MappedScopes(frameID string) (*pause.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.paused == nil {
		return nil, ErrNotPaused
	}
	if _, ok := s.paused.frame(frameID); !ok {
		return nil, fmt.Errorf("frame %q: %w", frameID, ErrFrameNotFound)
	}
	return s.paused.mappings[frameID], nil
}

// Resume ends the current pause. Mappings still in flight are discarded
// when they report back.
func (s *Store) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused == nil {
		return ErrNotPaused
	}
	s.paused = nil
	return nil
}

// WaitMappedScopes maps the scopes of a paused frame and waits for the result
func (s *Store) WaitMappedScopes(ctx context.Context, frameID string) (*model.MappedScopes, error) {
	mapping, err := s.MapScopes(frameID)
	if err != nil {
		return nil, err
	}
	scope, err := mapping.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &model.MappedScopes{Frame: mapping.Frame, Scope: scope}, nil
}
