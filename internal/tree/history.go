package tree

// maxHistory bounds each node's undo and redo stacks.
const maxHistory = 100

// SaveContentToHistory records previous content before an edit. Any redo
// chain is invalidated.
func (n *Node) SaveContentToHistory(previous string) {
	n.undo = pushBounded(n.undo, previous)
	n.redo = n.redo[:0]
}

// Edit replaces the content and records the old value for undo.
func (n *Node) Edit(content string) {
	if content == n.Content {
		return
	}
	n.SaveContentToHistory(n.Content)
	n.Content = content
}

// Undo restores the previous content. The bool is false when there is
// nothing to undo.
func (n *Node) Undo() (string, bool) {
	if len(n.undo) == 0 {
		return "", false
	}
	prev := n.undo[len(n.undo)-1]
	n.undo = n.undo[:len(n.undo)-1]
	n.redo = pushBounded(n.redo, n.Content)
	n.Content = prev
	return prev, true
}

// Redo reapplies content removed by Undo.
func (n *Node) Redo() (string, bool) {
	if len(n.redo) == 0 {
		return "", false
	}
	next := n.redo[len(n.redo)-1]
	n.redo = n.redo[:len(n.redo)-1]
	n.undo = pushBounded(n.undo, n.Content)
	n.Content = next
	return next, true
}

// CanUndo reports whether Undo would change anything.
func (n *Node) CanUndo() bool { return len(n.undo) > 0 }

// CanRedo reports whether Redo would change anything.
func (n *Node) CanRedo() bool { return len(n.redo) > 0 }

func pushBounded(stack []string, s string) []string {
	if len(stack) >= maxHistory {
		copy(stack, stack[1:])
		stack = stack[:len(stack)-1]
	}
	return append(stack, s)
}
