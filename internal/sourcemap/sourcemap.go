package sourcemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	gosourcemap "github.com/go-sourcemap/sourcemap"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// ErrNoSourceMap is returned when a generated source has no registered map
var ErrNoSourceMap = errors.New("no source map registered")

// Service keeps one source map consumer per generated source
type Service struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	generatedID string
	consumer    *gosourcemap.Consumer
	originals   []OriginalSource
	byURL       map[string]string // source url (raw or rooted) -> original id
	rawSources  map[string]string // original id -> raw sources entry
}

// NewService creates an empty source map registry
func NewService() *Service {
	return &Service{
		entries: make(map[string]*entry),
	}
}

// Register parses a source map for a generated source and returns the
// original sources it lists. Registering again replaces the previous map.
func (s *Service) Register(generatedID string, data []byte) ([]OriginalSource, error) {
	if !model.IsGeneratedID(generatedID) {
		return nil, fmt.Errorf("source %q is not a generated source", generatedID)
	}

	consumer, err := gosourcemap.Parse("", data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source map: %w", err)
	}

	var raw rawSourceMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse source map: %w", err)
	}

	e := &entry{
		generatedID: generatedID,
		consumer:    consumer,
		byURL:       make(map[string]string, len(raw.Sources)*2),
		rawSources:  make(map[string]string, len(raw.Sources)),
	}

	for i, src := range raw.Sources {
		sourceURL := joinSourceRoot(raw.SourceRoot, src)
		id := model.OriginalID(generatedID, sourceURL)
		if _, seen := e.rawSources[id]; seen {
			continue
		}

		original := OriginalSource{ID: id, URL: sourceURL}
		if i < len(raw.SourcesContent) {
			original.Content = raw.SourcesContent[i]
		}

		e.originals = append(e.originals, original)
		e.byURL[sourceURL] = id
		e.byURL[src] = id
		e.rawSources[id] = src
	}

	s.mu.Lock()
	s.entries[generatedID] = e
	s.mu.Unlock()

	return e.Originals(), nil
}

// Remove drops the map registered for a generated source
func (s *Service) Remove(generatedID string) {
	s.mu.Lock()
	delete(s.entries, generatedID)
	s.mu.Unlock()
}

// HasMap reports whether a map is registered for the generated source
func (s *Service) HasMap(generatedID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[generatedID]
	return ok
}

// Originals returns the original sources of a generated source
func (s *Service) Originals(generatedID string) ([]OriginalSource, error) {
	e, err := s.entry(generatedID)
	if err != nil {
		return nil, err
	}
	return e.Originals(), nil
}

// OriginalLocation maps a generated location to its original location. The
// returned name is the original identifier at that position, if any.
func (s *Service) OriginalLocation(loc model.Location) (model.Location, string, bool) {
	e, err := s.entry(loc.SourceID)
	if err != nil {
		return model.Location{}, "", false
	}
	return e.originalLocation(loc)
}

// MapStack rewrites a generated stack trace in terms of the original sources.
// With debug set, each line is suffixed with its mapping status.
func (s *Service) MapStack(generatedID, stack string, debug bool) (string, error) {
	e, err := s.entry(generatedID)
	if err != nil {
		return "", err
	}

	frames := ParseStack(stack)
	mapped := make([]mappedStackFrame, len(frames))
	for i, frame := range frames {
		mapped[i] = e.mapStackFrame(frame)
	}

	return formatStackTrace(mapped, debug), nil
}

func (s *Service) entry(generatedID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[generatedID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source %q: %w", generatedID, ErrNoSourceMap)
	}
	return e, nil
}

// Originals returns a copy of the original source list
func (e *entry) Originals() []OriginalSource {
	out := make([]OriginalSource, len(e.originals))
	copy(out, e.originals)
	return out
}

func (e *entry) originalLocation(loc model.Location) (model.Location, string, bool) {
	// go-sourcemap expects 1-indexed lines and 0-indexed columns, as Location does
	file, name, line, col, ok := e.consumer.Source(loc.Line, loc.Column)
	if !ok || file == "" || line <= 0 {
		return model.Location{}, "", false
	}

	return model.Location{
		SourceID: e.originalID(file),
		Line:     line,
		Column:   col,
	}, name, true
}

// originalID resolves a file name reported by the consumer to an original id
func (e *entry) originalID(file string) string {
	if id, ok := e.byURL[file]; ok {
		return id
	}
	// Longest suffix wins, first listed source on ties
	best, bestLen := "", 0
	for _, original := range e.originals {
		raw := e.rawSources[original.ID]
		if len(raw) > bestLen && strings.HasSuffix(file, raw) {
			best, bestLen = original.ID, len(raw)
		}
	}
	if best != "" {
		return best
	}
	return model.OriginalID(e.generatedID, file)
}

// mapStackFrame maps a single stack frame to its original position
func (e *entry) mapStackFrame(frame StackFrame) mappedStackFrame {
	loc, ok := frame.GeneratedLocation(e.generatedID)
	if !ok {
		return mappedStackFrame{StackFrame: frame}
	}

	file, name, line, col, ok := e.consumer.Source(loc.Line, loc.Column)
	if !ok || file == "" || line <= 0 {
		return mappedStackFrame{StackFrame: frame}
	}

	// Convert column back to 1-indexed
	colPlusOne := col + 1

	var origName *string
	if name != "" {
		origName = &name
	}

	return mappedStackFrame{
		StackFrame:           frame,
		OriginalFileName:     &file,
		OriginalLineNumber:   &line,
		OriginalColumnNumber: &colPlusOne,
		OriginalName:         origName,
		Mapped:               true,
	}
}

func joinSourceRoot(root, src string) string {
	if root == "" {
		return src
	}
	if u, err := url.Parse(src); err == nil && u.IsAbs() {
		return src
	}
	if strings.HasPrefix(src, "/") {
		return strings.TrimSuffix(root, "/") + src
	}
	return strings.TrimSuffix(root, "/") + "/" + src
}
