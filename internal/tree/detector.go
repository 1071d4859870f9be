package tree

import (
	"github.com/google/uuid"
)

// HasStructuralChanges reports whether current differs from previous in
// topology: node count, node ids, parent links or sibling order. Edits that
// only touch titles or contents return false.
func HasStructuralChanges(current, previous *Node) bool {
	if current == nil || previous == nil {
		return current != previous
	}

	if TotalFileCount(current) != TotalFileCount(previous) {
		return true
	}

	curIDs := collectIDs(current)
	prevIDs := collectIDs(previous)
	for id := range curIDs {
		if !prevIDs[id] {
			return true
		}
	}
	for id := range prevIDs {
		if !curIDs[id] {
			return true
		}
	}

	curParents := parentMap(current)
	prevParents := parentMap(previous)
	for id, parent := range curParents {
		if prevParent, ok := prevParents[id]; ok && prevParent != parent {
			return true
		}
	}

	return siblingOrderChanged(current, previous)
}

func collectIDs(root *Node) map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool)
	Walk(root, func(n *Node) bool {
		ids[n.Guid] = true
		return true
	})
	return ids
}

// parentMap maps every node to its parent's guid; the root maps to uuid.Nil.
func parentMap(root *Node) map[uuid.UUID]uuid.UUID {
	parents := make(map[uuid.UUID]uuid.UUID)
	Walk(root, func(n *Node) bool {
		parents[n.Guid] = parentGuid(n)
		return true
	})
	return parents
}

func siblingOrderChanged(current, previous *Node) bool {
	type pair struct{ cur, prev *Node }
	stack := []pair{{current, previous}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(p.cur.Children) != len(p.prev.Children) {
			return true
		}
		for i := range p.cur.Children {
			if p.cur.Children[i].Guid != p.prev.Children[i].Guid {
				return true
			}
			stack = append(stack, pair{p.cur.Children[i], p.prev.Children[i]})
		}
	}
	return false
}
