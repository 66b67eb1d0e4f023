// Package replytree provides depth-first search and path-copying updates
// over nested reply forests.
//
// The helpers never mutate their input. UpdateByID copies only the slices
// and nodes on the path from the root to the matched node; every other
// subtree is returned as-is so callers can compare by identity.
package replytree

import "slices"

// Node is a tree node identified by a string id.
// WithChildren must return a shallow copy of the node with its children
// replaced, leaving the receiver untouched.
type Node[T any] interface {
	NodeID() string
	NodeChildren() []T
	WithChildren(children []T) T
}

// Find returns the first node with the given id, searching depth-first.
func Find[T Node[T]](tree []T, id string) (T, bool) {
	for _, node := range tree {
		if node.NodeID() == id {
			return node, true
		}
		if found, ok := Find(node.NodeChildren(), id); ok {
			return found, true
		}
	}
	var zero T
	return zero, false
}

// Contains reports whether a node with the given id exists in the tree.
func Contains[T Node[T]](tree []T, id string) bool {
	_, ok := Find(tree, id)
	return ok
}

// UpdateByID replaces the node with the given id by fn(node).
// Ancestors of the match are shallow-copied; when nothing matches the
// original slice is returned and the bool is false.
func UpdateByID[T Node[T]](tree []T, id string, fn func(T) T) ([]T, bool) {
	for i, node := range tree {
		if node.NodeID() == id {
			out := slices.Clone(tree)
			out[i] = fn(node)
			return out, true
		}
		children, ok := UpdateByID(node.NodeChildren(), id, fn)
		if !ok {
			continue
		}
		out := slices.Clone(tree)
		out[i] = node.WithChildren(children)
		return out, true
	}
	return tree, false
}

// Map rebuilds the whole tree bottom-up, applying fn to every node after
// its children have been mapped.
func Map[T Node[T]](tree []T, fn func(T) T) []T {
	if tree == nil {
		return nil
	}
	out := make([]T, len(tree))
	for i, node := range tree {
		if children := node.NodeChildren(); len(children) > 0 {
			node = node.WithChildren(Map(children, fn))
		}
		out[i] = fn(node)
	}
	return out
}

// Walk visits every node depth-first. Returning false from fn stops the walk.
func Walk[T Node[T]](tree []T, fn func(node T, depth int) bool) {
	walk(tree, 0, fn)
}

func walk[T Node[T]](tree []T, depth int, fn func(T, int) bool) bool {
	for _, node := range tree {
		if !fn(node, depth) {
			return false
		}
		if !walk(node.NodeChildren(), depth+1, fn) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes in the tree.
func Count[T Node[T]](tree []T) int {
	n := 0
	Walk(tree, func(T, int) bool {
		n++
		return true
	})
	return n
}
