package sourcetree

import "github.com/yousuf/scopemap-mcp/internal/model"

// Directories returns the chain from the leaf holding src up through its
// recorded ancestors, nearest first. When the tree has no such leaf, the
// result is the tree itself.
func Directories(src *model.Source, parents ParentMap, tree *Node) []*Node {
	item := findSourceItem(tree, src)
	if item == nil {
		return []*Node{tree}
	}

	directories := []*Node{item}
	for {
		parent, ok := parents[item]
		if !ok || parent == nil {
			return directories
		}
		directories = append(directories, parent)
		item = parent
	}
}

// findSourceItem is a depth-first search that returns the first matching
// leaf in child order
func findSourceItem(subtree *Node, src *model.Source) *Node {
	if subtree == nil || src == nil {
		return nil
	}

	if subtree.Type == TypeSource {
		if subtree.Source != nil && subtree.Source.ID == src.ID {
			return subtree
		}
		return nil
	}

	for _, child := range subtree.Children {
		if match := findSourceItem(child, src); match != nil {
			return match
		}
	}
	return nil
}
