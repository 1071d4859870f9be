package tree

import (
	"github.com/google/uuid"
)

// MoveUp swaps the node with its preceding sibling.
func (n *Node) MoveUp() bool {
	if n.Parent == nil {
		return false
	}
	i := n.Index()
	if i <= 0 {
		return false
	}
	p := n.Parent
	p.removeChildAt(i)
	p.insertChild(i-1, n)
	return true
}

// MoveDown swaps the node with its following sibling.
func (n *Node) MoveDown() bool {
	if n.Parent == nil {
		return false
	}
	i := n.Index()
	if i < 0 || i >= len(n.Parent.Children)-1 {
		return false
	}
	p := n.Parent
	p.removeChildAt(i)
	p.insertChild(i+1, n)
	return true
}

// MoveLeft outdents the node: it becomes a sibling of its former parent,
// placed directly after it. Children of the root cannot move left.
func (n *Node) MoveLeft() bool {
	parent := n.Parent
	if parent == nil || parent.Parent == nil {
		return false
	}
	grand := parent.Parent
	parent.removeChildAt(n.Index())
	grand.insertChild(parent.Index()+1, n)
	return true
}

// MoveRight indents the node under its preceding sibling, as that sibling's
// last child.
func (n *Node) MoveRight() bool {
	parent := n.Parent
	if parent == nil {
		return false
	}
	i := n.Index()
	if i <= 0 {
		return false
	}
	prev := parent.Children[i-1]
	parent.removeChildAt(i)
	prev.appendChild(n)
	prev.IsExpanded = true
	return true
}

// DeleteIncludeChild clears the node's descendants bottom-up and detaches it
// from its parent. It returns the former parent's guid so focus can move
// there, or uuid.Nil when the node was a root.
func (n *Node) DeleteIncludeChild() uuid.UUID {
	// post-order: children are detached before their parents
	var order []*Node
	Walk(n, func(x *Node) bool {
		order = append(order, x)
		return true
	})
	for i := len(order) - 1; i > 0; i-- {
		x := order[i]
		x.Children = nil
		x.Parent = nil
	}
	n.Children = nil

	parent := n.Parent
	if parent == nil {
		return uuid.Nil
	}
	parent.removeChildAt(n.Index())
	return parent.Guid
}

// Editor applies quota-checked additions to a tree.
type Editor struct {
	Policy       QuotaPolicy
	Professional bool
	// NewGuid allocates ids for new nodes. Defaults to uuid.New.
	NewGuid func() uuid.UUID
}

// AddChild appends a new node under parent. The title falls back to one
// derived from content when blank. It returns nil when the quota policy
// blocks the addition; the tree is left untouched in that case.
func (e Editor) AddChild(parent *Node, title, content string) *Node {
	if parent == nil {
		return nil
	}
	if e.Policy != nil {
		if e.Policy.CheckDepth(parent, e.Professional) {
			return nil
		}
		if e.Policy.CheckFileCount(parent.Root(), e.Professional) {
			return nil
		}
	}

	newGuid := e.NewGuid
	if newGuid == nil {
		newGuid = uuid.New
	}

	child := &Node{
		Guid:      newGuid(),
		Title:     ResolveTitle(title, content),
		Content:   content,
		GroupGuid: parent.GroupGuid,
		IsPublic:  parent.IsPublic,
		UserName:  parent.UserName,
	}
	parent.appendChild(child)
	parent.IsExpanded = true
	return child
}
