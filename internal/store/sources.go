package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/model"
	"github.com/yousuf/scopemap-mcp/internal/sourcetree"
)

// maxSourceSize bounds fetched source text
const maxSourceSize = 32 << 20

// AddSource stores src, replacing any source with the same id. text may be
// nil when the text is to be loaded later. Pending breakpoints recorded for
// the source url are restored.
func (s *Store) AddSource(ctx context.Context, src model.Source, text *string) (*model.Source, error) {
	if src.ID == "" {
		return nil, errors.New("source id is required")
	}

	stored := src
	stored.Token = model.NextToken()

	s.mu.Lock()
	treeChanged := false
	if prev, ok := s.sources[src.ID]; ok {
		s.projector.EvictSource(prev)
		if s.selected == prev {
			s.selected = &stored
		}
		if prev.URL != stored.URL {
			treeChanged = sourcetree.RemoveSource(s.tree, src.ID)
		}
		// Text of the replaced source must not be parsed under the new token
		if text == nil {
			delete(s.texts, src.ID)
		}
	} else {
		s.sourceOrder = append(s.sourceOrder, src.ID)
	}
	s.sources[src.ID] = &stored
	if text != nil {
		s.texts[src.ID] = *text
	}
	if sourcetree.AddSource(s.tree, &stored) {
		treeChanged = true
	}
	if treeChanged {
		s.parents = sourcetree.CreateParentMap(s.tree)
	}
	s.mu.Unlock()

	s.restorePending(ctx, &stored)
	return &stored, nil
}

// AddSourceMap registers the source map of a generated source and adds the
// original sources it lists
func (s *Store) AddSourceMap(ctx context.Context, generatedID string, data []byte) ([]*model.Source, error) {
	if _, ok := s.GetSource(generatedID); !ok {
		return nil, fmt.Errorf("generated source %q: %w", generatedID, ErrSourceNotFound)
	}

	originals, err := s.maps.Register(generatedID, data)
	if err != nil {
		return nil, err
	}

	added := make([]*model.Source, 0, len(originals))
	for _, original := range originals {
		src, err := s.AddSource(ctx, model.Source{ID: original.ID, URL: original.URL}, original.Content)
		if err != nil {
			return nil, err
		}
		added = append(added, src)
	}

	s.logger.Debug("Registered source map",
		zap.String("generated", generatedID),
		zap.Int("originals", len(added)))
	return added, nil
}

// GetSource returns the source with the given id
func (s *Store) GetSource(id string) (*model.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	return src, ok
}

// SourceByURL returns the first added source with the given url
func (s *Store) SourceByURL(sourceURL string) (*model.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourceByURL(sourceURL)
}

func (s *Store) sourceByURL(sourceURL string) (*model.Source, bool) {
	for _, id := range s.sourceOrder {
		if src := s.sources[id]; src.URL == sourceURL {
			return src, true
		}
	}
	return nil, false
}

// SourceText returns the loaded text of a source
func (s *Store) SourceText(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.texts[id]
	return text, ok
}

// LoadSourceText makes the text of src available. Text already in memory
// wins; otherwise it is read from disk for file urls and bare paths, or
// fetched for http(s) urls.
func (s *Store) LoadSourceText(ctx context.Context, src *model.Source) error {
	if src == nil {
		return ErrSourceNotFound
	}
	if _, ok := s.SourceText(src.ID); ok {
		return nil
	}

	text, err := s.fetchText(ctx, src.URL)
	if err != nil {
		return fmt.Errorf("source %q: %w", src.ID, err)
	}

	s.mu.Lock()
	s.texts[src.ID] = text
	s.mu.Unlock()
	return nil
}

func (s *Store) fetchText(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", errors.New("no text loaded and no url to load it from")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return readFile(raw)
	}

	switch u.Scheme {
	case "file":
		return readFile(u.Path)
	case "http", "https":
		return s.fetchHTTP(ctx, raw)
	default:
		return "", fmt.Errorf("cannot load text for url scheme %q", u.Scheme)
	}
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read source file: %w", err)
	}
	return string(data), nil
}

func (s *Store) fetchHTTP(ctx context.Context, raw string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch source: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
	if err != nil {
		return "", fmt.Errorf("failed to read source body: %w", err)
	}
	return string(data), nil
}

// SelectSource selects the source shown in the editor. An empty id clears
// the selection.
func (s *Store) SelectSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.selected = nil
		return nil
	}
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %q: %w", id, ErrSourceNotFound)
	}
	s.selected = src
	return nil
}

// Selected returns the selected source, or nil
func (s *Store) Selected() *model.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Directories returns the source tree nodes from the leaf holding the
// source up to the root
func (s *Store) Directories(sourceID string) ([]*sourcetree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", sourceID, ErrSourceNotFound)
	}
	return sourcetree.Directories(src, s.parents, s.tree), nil
}

// MapStack rewrites a generated stack trace through the source map of the
// generated source
func (s *Store) MapStack(generatedID, stack string, debug bool) (string, error) {
	return s.maps.MapStack(generatedID, stack, debug)
}
