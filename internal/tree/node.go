// Package tree holds the in-memory editing model for a Pinecone tree.
//
// A Node owns its Children; Parent is a back pointer used to walk towards
// the root. Mutations are synchronous and report success with a bool rather
// than an error, since "not applicable" moves are ordinary user actions.
package tree

import (
	"github.com/google/uuid"
)

// Node is one document in the editing tree.
type Node struct {
	// ID is the server row id, zero until the node has been persisted.
	ID        int64
	Guid      uuid.UUID
	Title     string
	Content   string
	GroupGuid uuid.UUID
	IsPublic  bool
	UserName  string

	Parent   *Node
	Children []*Node

	IsCurrent  bool
	IsExpanded bool

	undo []string
	redo []string
}

// NewRoot creates a root node whose GroupGuid is its own Guid.
func NewRoot(guid uuid.UUID, title, content string) *Node {
	return &Node{
		Guid:      guid,
		Title:     title,
		Content:   content,
		GroupGuid: guid,
	}
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// Root walks up to the top of the tree.
func (n *Node) Root() *Node {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Index returns the node's position among its siblings, or -1 for a root.
func (n *Node) Index() int {
	if n.Parent == nil {
		return -1
	}
	for i, c := range n.Parent.Children {
		if c == n {
			return i
		}
	}
	return -1
}

// Depth is the number of Parent hops to the root. The root has depth 0.
func (n *Node) Depth() int {
	depth := 0
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		depth++
	}
	return depth
}

// appendChild links child as the last child of n.
func (n *Node) appendChild(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// insertChild links child at position i of n's children.
func (n *Node) insertChild(i int, child *Node) {
	child.Parent = n
	n.Children = append(n.Children, nil)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = child
}

// removeChildAt unlinks and returns the child at position i.
func (n *Node) removeChildAt(i int) *Node {
	child := n.Children[i]
	copy(n.Children[i:], n.Children[i+1:])
	n.Children[len(n.Children)-1] = nil
	n.Children = n.Children[:len(n.Children)-1]
	child.Parent = nil
	return child
}

// Walk visits every node under (and including) root in pre-order, stopping
// early when fn returns false. It uses an explicit stack so arbitrarily deep
// trees do not grow the goroutine stack.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil {
		return
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			return
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Find returns the node with the given guid, or nil.
func Find(root *Node, guid uuid.UUID) *Node {
	var found *Node
	Walk(root, func(n *Node) bool {
		if n.Guid == guid {
			found = n
			return false
		}
		return true
	})
	return found
}

// TotalFileCount counts every node reachable from root, root included.
func TotalFileCount(root *Node) int {
	count := 0
	Walk(root, func(*Node) bool {
		count++
		return true
	})
	return count
}

// MaxDepth returns the depth of the deepest node under root, relative to root.
func MaxDepth(root *Node) int {
	if root == nil {
		return 0
	}
	type entry struct {
		n     *Node
		depth int
	}
	deepest := 0
	stack := []entry{{root, 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e.depth > deepest {
			deepest = e.depth
		}
		for _, c := range e.n.Children {
			stack = append(stack, entry{c, e.depth + 1})
		}
	}
	return deepest
}

// SetCurrent marks the node with the given guid as current, clears the flag
// everywhere else and expands every ancestor of the match. It returns the
// matched node or nil when the guid is not in this tree.
func SetCurrent(root *Node, guid uuid.UUID) *Node {
	var match *Node
	Walk(root, func(n *Node) bool {
		n.IsCurrent = n.Guid == guid
		if n.IsCurrent {
			match = n
		}
		return true
	})
	if match == nil {
		return nil
	}
	for p := match.Parent; p != nil; p = p.Parent {
		p.IsExpanded = true
	}
	return match
}

// Current returns the focused node, if any.
func Current(root *Node) *Node {
	var cur *Node
	Walk(root, func(n *Node) bool {
		if n.IsCurrent {
			cur = n
			return false
		}
		return true
	})
	return cur
}
