package tree

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"pinetree/internal/models"
)

// FromPinecones materialises the tree rooted at rootGuid. Children are
// ordered by Order, then by row id. Rows not reachable from the root are
// ignored.
func FromPinecones(rows []models.Pinecone, rootGuid uuid.UUID) (*Node, error) {
	var rootRow *models.Pinecone
	byParent := make(map[uuid.UUID][]*models.Pinecone)
	for i := range rows {
		row := &rows[i]
		if row.Guid == rootGuid {
			rootRow = row
			continue
		}
		if row.ParentGuid != nil {
			byParent[*row.ParentGuid] = append(byParent[*row.ParentGuid], row)
		}
	}
	if rootRow == nil {
		return nil, fmt.Errorf("root %s not present in rows", rootGuid)
	}

	for _, siblings := range byParent {
		sort.SliceStable(siblings, func(i, j int) bool {
			if siblings[i].Order != siblings[j].Order {
				return siblings[i].Order < siblings[j].Order
			}
			return siblings[i].ID < siblings[j].ID
		})
	}

	root := nodeFromRow(rootRow)
	queue := []*Node{root}
	seen := map[uuid.UUID]bool{root.Guid: true}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, row := range byParent[parent.Guid] {
			if seen[row.Guid] {
				continue
			}
			seen[row.Guid] = true
			child := nodeFromRow(row)
			parent.appendChild(child)
			queue = append(queue, child)
		}
	}
	return root, nil
}

func nodeFromRow(row *models.Pinecone) *Node {
	return &Node{
		ID:        row.ID,
		Guid:      row.Guid,
		Title:     row.Title,
		Content:   row.Content,
		GroupGuid: row.GroupGuid,
		IsPublic:  row.IsPublic,
		UserName:  row.UserName,
	}
}

// Flatten emits one descriptor per node in pre-order. Order is the node's
// position among its siblings, so the result is always dense.
func Flatten(root *Node) []models.NodeDescriptor {
	var out []models.NodeDescriptor
	Walk(root, func(n *Node) bool {
		d := models.NodeDescriptor{
			Guid:      n.Guid.String(),
			Title:     n.Title,
			Content:   n.Content,
			GroupGuid: n.GroupGuid.String(),
			IsPublic:  n.IsPublic,
		}
		if n.Parent != nil {
			parent := n.Parent.Guid.String()
			d.ParentGuid = &parent
			d.Order = n.Index()
		}
		out = append(out, d)
		return true
	})
	return out
}
