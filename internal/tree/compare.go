package tree

import (
	"github.com/google/uuid"
)

// Equal compares two trees node by node: ids, titles, contents, group ids,
// parent ids and child order. UI state and history are ignored.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	type pair struct{ x, y *Node }
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !sameFields(p.x, p.y) || parentGuid(p.x) != parentGuid(p.y) {
			return false
		}
		if len(p.x.Children) != len(p.y.Children) {
			return false
		}
		for i := range p.x.Children {
			stack = append(stack, pair{p.x.Children[i], p.y.Children[i]})
		}
	}
	return true
}

func sameFields(x, y *Node) bool {
	return x.Guid == y.Guid &&
		x.ID == y.ID &&
		x.Title == y.Title &&
		x.Content == y.Content &&
		x.GroupGuid == y.GroupGuid
}

func parentGuid(n *Node) uuid.UUID {
	if n.Parent == nil {
		return uuid.Nil
	}
	return n.Parent.Guid
}

// DeepClone copies n and its subtree into fresh nodes with the same ids.
// The clone's root has no parent.
func DeepClone(n *Node) *Node {
	if n == nil {
		return nil
	}
	type pair struct{ src, dst *Node }
	root := cloneFields(n)
	stack := []pair{{n, root}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(p.src.Children) > 0 {
			p.dst.Children = make([]*Node, 0, len(p.src.Children))
		}
		for _, c := range p.src.Children {
			cc := cloneFields(c)
			p.dst.appendChild(cc)
			stack = append(stack, pair{c, cc})
		}
	}
	return root
}

func cloneFields(n *Node) *Node {
	return &Node{
		ID:         n.ID,
		Guid:       n.Guid,
		Title:      n.Title,
		Content:    n.Content,
		GroupGuid:  n.GroupGuid,
		IsPublic:   n.IsPublic,
		UserName:   n.UserName,
		IsCurrent:  n.IsCurrent,
		IsExpanded: n.IsExpanded,
		undo:       append([]string(nil), n.undo...),
		redo:       append([]string(nil), n.redo...),
	}
}
