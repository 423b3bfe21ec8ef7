package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yousuf/scopemap-mcp/internal/store"
)

// Manager manages session contexts
type Manager struct {
	sessions map[string]*Context
	mu       sync.RWMutex

	// ctx bounds the lifetime of every session store
	ctx    context.Context
	opts   store.Options
	logger *zap.Logger
}

// NewManager creates a new session manager. Every session gets its own
// store built from opts.
func NewManager(ctx context.Context, opts store.Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Context),
		ctx:      ctx,
		opts:     opts,
		logger:   logger,
	}
}

// GetOrCreateSession gets an existing session or creates a new one
func (m *Manager) GetOrCreateSession(sessionID string) *Context {
	// Try to get existing session
	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if exists {
		session.Touch()
		return session
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if session, exists := m.sessions[sessionID]; exists {
		session.Touch()
		return session
	}

	opts := m.opts
	opts.Logger = m.logger.With(zap.String("session", sessionID))

	session = NewContext(sessionID, store.New(m.ctx, opts))
	m.sessions[sessionID] = session
	m.logger.Info("Session created", zap.String("session", sessionID))

	return session
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(sessionID string) *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// DeleteSession removes a session and cleans up its resources
func (m *Manager) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("session %q not found", sessionID)
	}

	session.Store.Close()
	delete(m.sessions, sessionID)
	return nil
}

// CloseIdle closes the sessions unused for longer than maxIdle and returns
// how many were closed
func (m *Manager) CloseIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	closed := 0
	for sessionID, session := range m.sessions {
		if session.LastAccessed().After(cutoff) {
			continue
		}
		session.Store.Close()
		delete(m.sessions, sessionID)
		closed++
		m.logger.Info("Session expired", zap.String("session", sessionID))
	}
	return closed
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes all sessions
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range m.sessions {
		session.Store.Close()
	}

	m.sessions = make(map[string]*Context)
}
