// Package sourcetree builds the hierarchical view of sources shown in a
// debugger's source list and locates a source's ancestor directories in it.
package sourcetree

import (
	"net/url"
	"strings"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// NodeType distinguishes leaves from interior nodes
type NodeType string

const (
	TypeSource    NodeType = "source"
	TypeDirectory NodeType = "directory"
)

const (
	rootName   = "root"
	noDomain   = "(no domain)"
	indexEntry = "(index)"
)

// Node is either a leaf wrapping a source or a directory with ordered children
type Node struct {
	Type     NodeType
	Name     string
	Path     string
	Source   *model.Source
	Children []*Node
}

// ParentMap links each child node to its parent directory
type ParentMap map[*Node]*Node

// NewRoot creates an empty tree
func NewRoot() *Node {
	return &Node{Type: TypeDirectory, Name: rootName}
}

// NewDirectory creates an interior node holding children in the given order
func NewDirectory(name, path string, children ...*Node) *Node {
	return &Node{Type: TypeDirectory, Name: name, Path: path, Children: children}
}

// NewSourceNode creates a leaf for src
func NewSourceNode(name, path string, src *model.Source) *Node {
	return &Node{Type: TypeSource, Name: name, Path: path, Source: src}
}

// AddSource inserts src under root following the segments of its url: the
// host first, then each path segment. Sources without a url are not listed.
// A source already present at the same path is replaced in place.
func AddSource(root *Node, src *model.Source) bool {
	if src == nil || src.URL == "" {
		return false
	}

	segments := urlSegments(src.URL)
	parent := root
	path := ""
	for _, dir := range segments[:len(segments)-1] {
		path = path + "/" + dir
		parent = findOrCreateDirectory(parent, dir, path)
	}

	name := segments[len(segments)-1]
	path = path + "/" + name
	for _, child := range parent.Children {
		if child.Type == TypeSource && child.Name == name {
			child.Source = src
			return true
		}
	}
	parent.Children = append(parent.Children, NewSourceNode(name, path, src))
	return true
}

// RemoveSource removes every leaf holding the source with the given id and
// prunes the directories left empty. It reports whether anything was removed.
func RemoveSource(root *Node, sourceID string) bool {
	if root == nil {
		return false
	}

	removed := false
	kept := root.Children[:0]
	for _, child := range root.Children {
		switch child.Type {
		case TypeSource:
			if child.Source != nil && child.Source.ID == sourceID {
				removed = true
				continue
			}
		case TypeDirectory:
			if RemoveSource(child, sourceID) {
				removed = true
				if len(child.Children) == 0 {
					continue
				}
			}
		}
		kept = append(kept, child)
	}
	clear(root.Children[len(kept):])
	root.Children = kept
	return removed
}

// CreateParentMap walks the tree once and records every child's parent
func CreateParentMap(root *Node) ParentMap {
	parents := make(ParentMap)
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Children {
			parents[child] = n
			walk(child)
		}
	}
	if root != nil {
		walk(root)
	}
	return parents
}

func findOrCreateDirectory(parent *Node, name, path string) *Node {
	for _, child := range parent.Children {
		if child.Type == TypeDirectory && child.Name == name {
			return child
		}
	}
	dir := NewDirectory(name, path)
	parent.Children = append(parent.Children, dir)
	return dir
}

// urlSegments splits a url into its host and path segments. The last
// segment always names the file.
func urlSegments(raw string) []string {
	host := noDomain
	path := raw

	if u, err := url.Parse(raw); err == nil {
		switch {
		case u.Host != "":
			host = u.Host
		case u.Scheme != "":
			host = u.Scheme + "://"
		}
		if u.Scheme != "" || u.Host != "" {
			path = u.Path
			if u.RawQuery != "" {
				path += "?" + u.RawQuery
			}
		}
	}

	segments := []string{host}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	if len(segments) == 1 || strings.HasSuffix(path, "/") {
		segments = append(segments, indexEntry)
	}
	return segments
}
