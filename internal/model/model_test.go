package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceIDs(t *testing.T) {
	orig := OriginalID("server1.conn1.child1/source27", "webpack:///src/app.js")

	assert.True(t, IsGeneratedID("server1.conn1.child1/source27"))
	assert.False(t, IsGeneratedID(orig))
	assert.True(t, IsOriginalID(orig))
	assert.Equal(t, "server1.conn1.child1/source27", GeneratedID(orig))
	assert.Equal(t, "gen", GeneratedID("gen"))

	// Deterministic for the same inputs, distinct across urls
	assert.Equal(t, orig, OriginalID("server1.conn1.child1/source27", "webpack:///src/app.js"))
	assert.NotEqual(t, orig, OriginalID("server1.conn1.child1/source27", "webpack:///src/other.js"))
}

func TestTokens(t *testing.T) {
	src := NewSource("a", "http://example.com/a.js")
	replaced := src.Replace()

	assert.NotZero(t, src.Token)
	assert.NotEqual(t, src.Token, replaced.Token)
	assert.Equal(t, src.ID, replaced.ID)
}

func TestNewBreakpoint_ID(t *testing.T) {
	t.Run("original location wins", func(t *testing.T) {
		bp := NewBreakpoint(&Location{SourceID: "o", Line: 3, Column: 1}, &Location{SourceID: "g", Line: 1, Column: 40})
		assert.Equal(t, "o:3:1", bp.ID)
	})

	t.Run("generated only", func(t *testing.T) {
		bp := NewBreakpoint(nil, &Location{SourceID: "g", Line: 1, Column: 40})
		assert.Equal(t, "g:1:40", bp.ID)
	})
}

func TestScopeChain(t *testing.T) {
	global := &Scope{Kind: ScopeGlobal, Bindings: []Binding{{Name: "x", Value: "global"}}}
	fn := &Scope{Kind: ScopeFunction, Bindings: []Binding{{Name: "x", Value: "local"}, {Name: "y", Value: 2}}}
	inner := Link([]*Scope{fn, global})

	b, ok := inner.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, "local", b.Value)

	_, ok = inner.Lookup("missing")
	assert.False(t, ok)

	assert.Same(t, global, inner.Root())
	assert.Len(t, inner.Chain(), 2)
}
