package scopes

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// lexicalScope is a scope recovered from original source text
type lexicalScope struct {
	kind     model.ScopeKind
	name     string
	start    sitter.Point
	end      sitter.Point
	bindings []string
	declared map[string]bool
	parent   *lexicalScope
	children []*lexicalScope
}

func newLexicalScope(kind model.ScopeKind, name string, node *sitter.Node, parent *lexicalScope) *lexicalScope {
	s := &lexicalScope{
		kind:     kind,
		name:     name,
		start:    node.StartPoint(),
		end:      node.EndPoint(),
		declared: make(map[string]bool),
		parent:   parent,
	}
	if parent != nil {
		parent.children = append(parent.children, s)
	}
	return s
}

func (s *lexicalScope) declare(name string) {
	if name == "" || s.declared[name] {
		return
	}
	s.declared[name] = true
	s.bindings = append(s.bindings, name)
}

func (s *lexicalScope) contains(p sitter.Point) bool {
	return !pointBefore(p, s.start) && !pointBefore(s.end, p)
}

// innermost returns the deepest scope containing p
func (s *lexicalScope) innermost(p sitter.Point) *lexicalScope {
	for _, child := range s.children {
		if child.contains(p) {
			return child.innermost(p)
		}
	}
	return s
}

func pointBefore(a, b sitter.Point) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Column < b.Column
}

// parseScopes parses JavaScript source into its tree of lexical scopes. The
// returned scope is the module scope.
func parseScopes(ctx context.Context, text []byte) (*lexicalScope, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}

	root := tree.RootNode()
	module := newLexicalScope(model.ScopeModule, "", root, nil)
	w := &walker{src: text}
	w.walkChildren(root, module, module)
	return module, nil
}

type walker struct {
	src []byte
}

func (w *walker) walkChildren(node *sitter.Node, scope, fnScope *lexicalScope) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walkNode(node.NamedChild(i), scope, fnScope)
	}
}

func (w *walker) walkNode(n *sitter.Node, scope, fnScope *lexicalScope) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		name := w.fieldContent(n, "name")
		scope.declare(name)
		w.walkFunction(n, name, scope)

	case "function", "function_expression", "generator_function", "arrow_function", "method_definition":
		w.walkFunction(n, w.fieldContent(n, "name"), scope)

	case "class_declaration":
		scope.declare(w.fieldContent(n, "name"))
		w.walkChildren(n, scope, fnScope)

	case "statement_block":
		block := newLexicalScope(model.ScopeBlock, "", n, scope)
		w.walkChildren(n, block, fnScope)

	case "for_statement":
		block := newLexicalScope(model.ScopeBlock, "", n, scope)
		w.walkChildren(n, block, fnScope)

	case "for_in_statement":
		block := newLexicalScope(model.ScopeBlock, "", n, scope)
		switch w.declarationKind(n) {
		case "var":
			w.declarePattern(n.ChildByFieldName("left"), fnScope)
		case "let", "const":
			w.declarePattern(n.ChildByFieldName("left"), block)
		}
		w.walkNode(n.ChildByFieldName("right"), scope, fnScope)
		w.walkNode(n.ChildByFieldName("body"), block, fnScope)

	case "catch_clause":
		block := newLexicalScope(model.ScopeBlock, "catch", n, scope)
		w.declarePattern(n.ChildByFieldName("parameter"), block)
		if body := n.ChildByFieldName("body"); body != nil {
			w.walkChildren(body, block, fnScope)
		}

	case "variable_declaration":
		w.walkDeclarators(n, fnScope, scope, fnScope)

	case "lexical_declaration":
		w.walkDeclarators(n, scope, scope, fnScope)

	default:
		w.walkChildren(n, scope, fnScope)
	}
}

// walkDeclarators declares every declarator name in target and walks the
// initializers for nested functions
func (w *walker) walkDeclarators(n *sitter.Node, target, scope, fnScope *lexicalScope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		w.declarePattern(decl.ChildByFieldName("name"), target)
		w.walkNode(decl.ChildByFieldName("value"), scope, fnScope)
	}
}

func (w *walker) walkFunction(n *sitter.Node, name string, parent *lexicalScope) {
	if name == "" {
		name = "<anonymous>"
	}
	fn := newLexicalScope(model.ScopeFunction, name, n, parent)

	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			w.declarePattern(params.NamedChild(i), fn)
		}
	} else if param := n.ChildByFieldName("parameter"); param != nil {
		w.declarePattern(param, fn)
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	if body.Type() == "statement_block" {
		w.walkChildren(body, fn, fn)
		return
	}
	// Arrow functions with an expression body
	w.walkNode(body, fn, fn)
}

// declarePattern declares every identifier bound by a binding pattern
func (w *walker) declarePattern(n *sitter.Node, scope *lexicalScope) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		scope.declare(n.Content(w.src))
	case "assignment_pattern", "object_assignment_pattern":
		w.declarePattern(n.ChildByFieldName("left"), scope)
	case "pair_pattern":
		w.declarePattern(n.ChildByFieldName("value"), scope)
	case "rest_pattern", "object_pattern", "array_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.declarePattern(n.NamedChild(i), scope)
		}
	}
}

// declarationKind returns var, let or const for a for-in/of header that
// declares its loop variable, and "" otherwise
func (w *walker) declarationKind(n *sitter.Node) string {
	if kind := n.ChildByFieldName("kind"); kind != nil {
		return kind.Content(w.src)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.IsNamed() {
			continue
		}
		switch child.Type() {
		case "var", "let", "const":
			return child.Type()
		}
	}
	return ""
}

func (w *walker) fieldContent(n *sitter.Node, field string) string {
	if child := n.ChildByFieldName(field); child != nil {
		return child.Content(w.src)
	}
	return ""
}
