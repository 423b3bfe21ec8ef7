package pause

import (
	"context"
	"sync"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// State is the lifecycle state of a scope mapping
type State string

const (
	StatePending  State = "pending"
	StateResolved State = "resolved"
)

// Mapping is the in-flight or finished result of mapping one frame's
// scopes. It resolves exactly once, possibly to a nil scope.
type Mapping struct {
	Frame model.Frame

	done  chan struct{}
	once  sync.Once
	scope *model.Scope
}

func newMapping(frame model.Frame) *Mapping {
	return &Mapping{Frame: frame, done: make(chan struct{})}
}

// Resolved returns a mapping that is already finished with scope
func Resolved(frame model.Frame, scope *model.Scope) *Mapping {
	m := newMapping(frame)
	m.resolve(scope)
	return m
}

func (m *Mapping) resolve(scope *model.Scope) {
	m.once.Do(func() {
		m.scope = scope
		close(m.done)
	})
}

// State reports whether the mapping has finished
func (m *Mapping) State() State {
	select {
	case <-m.done:
		return StateResolved
	default:
		return StatePending
	}
}

// Done is closed once the mapping resolves
func (m *Mapping) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the mapping resolves or ctx is done. A nil scope with a
// nil error means no mapping is available.
func (m *Mapping) Wait(ctx context.Context) (*model.Scope, error) {
	select {
	case <-m.done:
		return m.scope, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the mapped scope and whether the mapping has resolved
func (m *Mapping) Result() (*model.Scope, bool) {
	select {
	case <-m.done:
		return m.scope, true
	default:
		return nil, false
	}
}
