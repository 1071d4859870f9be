package tree

import "github.com/google/uuid"

// View is the JSON shape of a node and its subtree.
type View struct {
	ID         int64     `json:"id,omitempty"`
	Guid       uuid.UUID `json:"guid"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	GroupGuid  uuid.UUID `json:"groupGuid"`
	IsPublic   bool      `json:"isPublic"`
	IsCurrent  bool      `json:"isCurrent,omitempty"`
	IsExpanded bool      `json:"isExpanded,omitempty"`
	CanUndo    bool      `json:"canUndo,omitempty"`
	CanRedo    bool      `json:"canRedo,omitempty"`
	Children   []*View   `json:"children"`
}

// ToView copies root into a View tree.
func ToView(root *Node) *View {
	if root == nil {
		return nil
	}
	type pair struct {
		n *Node
		v *View
	}
	out := viewOf(root)
	stack := []pair{{root, out}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range p.n.Children {
			cv := viewOf(c)
			p.v.Children = append(p.v.Children, cv)
			stack = append(stack, pair{c, cv})
		}
	}
	return out
}

func viewOf(n *Node) *View {
	return &View{
		ID:         n.ID,
		Guid:       n.Guid,
		Title:      n.Title,
		Content:    n.Content,
		GroupGuid:  n.GroupGuid,
		IsPublic:   n.IsPublic,
		IsCurrent:  n.IsCurrent,
		IsExpanded: n.IsExpanded,
		CanUndo:    n.CanUndo(),
		CanRedo:    n.CanRedo(),
		Children:   []*View{},
	}
}
