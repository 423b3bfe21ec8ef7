package session

import (
	"sync/atomic"
	"time"

	"github.com/yousuf/scopemap-mcp/internal/store"
)

// Context represents a session context with its associated resources
type Context struct {
	SessionID string
	Store     *store.Store

	lastAccessed atomic.Int64
}

// NewContext creates a new session context
func NewContext(sessionID string, st *store.Store) *Context {
	c := &Context{
		SessionID: sessionID,
		Store:     st,
	}
	c.Touch()
	return c
}

// Touch records that the session was just used
func (c *Context) Touch() {
	c.lastAccessed.Store(time.Now().UnixNano())
}

// LastAccessed returns when the session was last used
func (c *Context) LastAccessed() time.Time {
	return time.Unix(0, c.lastAccessed.Load())
}
