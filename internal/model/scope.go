package model

// ScopeKind classifies a lexical environment
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeModule   ScopeKind = "module"
	ScopeFunction ScopeKind = "function"
	ScopeBlock    ScopeKind = "block"
)

// Binding is a named value in a scope
type Binding struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`

	// Unavailable marks bindings whose value could not be recovered
	Unavailable bool `json:"unavailable,omitempty"`

	// Decl is the generated position of the declaration, when known
	Decl *Location `json:"-"`
}

// Scope is a node of a scope chain, linked to its enclosing scope
type Scope struct {
	Kind     ScopeKind `json:"kind"`
	Name     string    `json:"name,omitempty"`
	Bindings []Binding `json:"bindings"`
	Parent   *Scope    `json:"-"`
}

// Lookup finds the innermost binding with the given name
func (s *Scope) Lookup(name string) (Binding, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		for _, b := range cur.Bindings {
			if b.Name == name {
				return b, true
			}
		}
	}
	return Binding{}, false
}

// Root returns the outermost scope of the chain
func (s *Scope) Root() *Scope {
	if s == nil {
		return nil
	}
	cur := s
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Chain flattens the scope chain, innermost first
func (s *Scope) Chain() []*Scope {
	var chain []*Scope
	for cur := s; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	return chain
}

// Link connects scopes given innermost first and returns the innermost
func Link(scopes []*Scope) *Scope {
	if len(scopes) == 0 {
		return nil
	}
	for i := 0; i < len(scopes)-1; i++ {
		scopes[i].Parent = scopes[i+1]
	}
	scopes[len(scopes)-1].Parent = nil
	return scopes[0]
}
