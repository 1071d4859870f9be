package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"pinetree/internal/models"
	"pinetree/internal/tree"
)

// Save strategies
const (
	StrategyContent   = "content"
	StrategyStructure = "structure"
)

// SaveResult summarises what a SaveTree call wrote.
type SaveResult struct {
	Strategy string `json:"strategy"`
	Updated  int    `json:"updated"`
	Inserted int    `json:"inserted"`
	Deleted  int    `json:"deleted"`
	Skipped  int    `json:"skipped"`
}

// ReconcileService applies an edited tree back to the store. Content is
// sealed by vault according to the visibility the row is stored with.
type ReconcileService struct {
	store   TxPineconeStore
	vault   *ContentVault
	now     func() time.Time
	newGuid func() uuid.UUID
}

// NewReconcileService creates a reconciler over store. vault may be nil.
func NewReconcileService(store TxPineconeStore, vault *ContentVault) *ReconcileService {
	return &ReconcileService{
		store:   store,
		vault:   vault,
		now:     func() time.Time { return time.Now().UTC() },
		newGuid: uuid.New,
	}
}

// descriptor is a NodeDescriptor with parsed ids.
type descriptor struct {
	guid     uuid.UUID
	parent   uuid.UUID
	isRoot   bool
	title    string
	content  string
	order    int
	isPublic bool
	// index is the position in the request, used to break Order ties
	index int
}

func parseDescriptors(nodes []models.NodeDescriptor) ([]*descriptor, error) {
	out := make([]*descriptor, 0, len(nodes))
	for i, n := range nodes {
		d := &descriptor{
			title:    n.Title,
			content:  n.Content,
			order:    n.Order,
			isPublic: n.IsPublic,
			isRoot:   n.IsRoot(),
			index:    i,
		}
		if n.Guid != "" {
			g, err := uuid.Parse(n.Guid)
			if err != nil {
				return nil, fmt.Errorf("%w: node %d has invalid guid %q", ErrValidation, i, n.Guid)
			}
			d.guid = g
		}
		if !d.isRoot {
			p, err := uuid.Parse(*n.ParentGuid)
			if err != nil {
				return nil, fmt.Errorf("%w: node %d has invalid parentGuid %q", ErrValidation, i, *n.ParentGuid)
			}
			d.parent = p
		}
		out = append(out, d)
	}
	return out, nil
}

// SaveTree persists the whole tree described by req on behalf of userName.
// Without structural changes only titles, contents and orders are written.
// Otherwise the stored tree is rebuilt inside one transaction. limits caps
// the size of rebuilt trees.
func (s *ReconcileService) SaveTree(ctx context.Context, userName string, req *models.SaveTreeRequest, limits tree.Limits) (*SaveResult, error) {
	rootID, err := uuid.Parse(req.RootID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid rootId %q", ErrValidation, req.RootID)
	}

	root, err := s.store.FindByGuid(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if err := checkTreeRoot(root, userName); err != nil {
		return nil, err
	}

	descs, err := parseDescriptors(req.Nodes)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result *SaveResult
	if req.HasStructuralChanges {
		result, err = s.rebuild(ctx, userName, root, descs, limits)
	} else {
		result, err = s.saveContent(ctx, userName, root, descs)
	}
	recordSave(result, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	log.Printf("🌲 [RECONCILE] %s saved tree %s (%s): %d updated, %d inserted, %d deleted, %d skipped",
		userName, rootID, result.Strategy, result.Updated, result.Inserted, result.Deleted, result.Skipped)
	return result, nil
}

func checkTreeRoot(root *models.Pinecone, userName string) error {
	if !root.IsRoot() {
		return fmt.Errorf("%w: %s is not a tree root", ErrValidation, root.Guid)
	}
	if root.DeletedAt != nil {
		return fmt.Errorf("tree %s is in the trash: %w", root.Guid, ErrNotFound)
	}
	if root.UserName != userName {
		return fmt.Errorf("tree %s: %w", root.Guid, ErrUnauthorized)
	}
	return nil
}

// saveContent overwrites title, content and order of rows that already
// exist in this tree. Topology and visibility are left alone.
func (s *ReconcileService) saveContent(ctx context.Context, userName string, root *models.Pinecone, descs []*descriptor) (*SaveResult, error) {
	result := &SaveResult{Strategy: StrategyContent}
	now := s.now()

	for _, d := range descs {
		if d.guid == uuid.Nil {
			result.Skipped++
			continue
		}
		row, err := s.store.FindByGuid(ctx, d.guid)
		if errors.Is(err, ErrNotFound) {
			result.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		if row.UserName != userName || row.GroupGuid != root.Guid {
			result.Skipped++
			continue
		}

		content, err := s.vault.Seal(userName, d.content, row.IsPublic)
		if err != nil {
			return nil, err
		}
		row.Title = tree.ResolveTitle(d.title, d.content)
		row.Content = content
		if !row.IsRoot() {
			row.Order = d.order
		}
		row.UpdatedAt = now
		if err := s.store.Update(ctx, row); err != nil {
			return nil, err
		}
		result.Updated++
	}
	return result, nil
}

// plan is a validated descriptor list arranged by parent.
type plan struct {
	root     *descriptor
	children map[uuid.UUID][]*descriptor
	keep     map[uuid.UUID]bool
	count    int
	depth    int
}

// planRebuild checks that the descriptors form a single tree rooted at
// rootID and groups them by parent. Siblings are ordered by Order, then by
// their position in the request.
func planRebuild(rootID uuid.UUID, descs []*descriptor) (*plan, error) {
	p := &plan{
		children: make(map[uuid.UUID][]*descriptor),
		keep:     make(map[uuid.UUID]bool),
	}

	for _, d := range descs {
		if d.isRoot {
			if p.root != nil {
				return nil, fmt.Errorf("%w: more than one node has no parent", ErrValidation)
			}
			p.root = d
		}
		if d.guid != uuid.Nil {
			if p.keep[d.guid] {
				return nil, fmt.Errorf("%w: duplicate guid %s", ErrValidation, d.guid)
			}
			p.keep[d.guid] = true
		}
	}
	if p.root == nil {
		return nil, fmt.Errorf("%w: no node without a parent", ErrValidation)
	}
	if p.root.guid != rootID {
		return nil, fmt.Errorf("%w: root node %s does not match rootId %s", ErrValidation, p.root.guid, rootID)
	}

	for _, d := range descs {
		if !d.isRoot {
			p.children[d.parent] = append(p.children[d.parent], d)
		}
	}
	for _, siblings := range p.children {
		sort.SliceStable(siblings, func(i, j int) bool {
			if siblings[i].order != siblings[j].order {
				return siblings[i].order < siblings[j].order
			}
			return siblings[i].index < siblings[j].index
		})
	}

	type entry struct {
		guid  uuid.UUID
		depth int
	}
	queue := []entry{{rootID, 0}}
	reached := 1
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e.depth > p.depth {
			p.depth = e.depth
		}
		for _, c := range p.children[e.guid] {
			reached++
			if c.guid != uuid.Nil {
				queue = append(queue, entry{c.guid, e.depth + 1})
			} else if e.depth+1 > p.depth {
				p.depth = e.depth + 1
			}
		}
	}
	if reached != len(descs) {
		return nil, fmt.Errorf("%w: %d nodes are not reachable from the root", ErrValidation, len(descs)-reached)
	}
	p.count = reached
	return p, nil
}

func (p *plan) checkLimits(limits tree.Limits) error {
	if limits.MaxFiles >= 0 && p.count > limits.MaxFiles {
		return fmt.Errorf("%w: tree has %d nodes, limit is %d", ErrQuotaExceeded, p.count, limits.MaxFiles)
	}
	if limits.MaxDepth >= 0 && p.depth > limits.MaxDepth {
		return fmt.Errorf("%w: tree is %d levels deep, limit is %d", ErrQuotaExceeded, p.depth, limits.MaxDepth)
	}
	return nil
}

// foreignSubtrees finds descriptors naming rows that live outside this tree
// or belong to someone else. Each one is skipped together with every
// descriptor below it, and rows of this tree under a skipped descriptor are
// deleted instead of kept.
func (s *ReconcileService) foreignSubtrees(ctx context.Context, tx PineconeStore, userName string, rootGuid uuid.UUID, p *plan, old map[uuid.UUID]*models.Pinecone) (map[*descriptor]bool, error) {
	var stack []*descriptor
	for _, siblings := range p.children {
		for _, d := range siblings {
			if d.guid == uuid.Nil {
				continue
			}
			if old[d.guid] != nil {
				continue
			}
			row, err := tx.FindByGuid(ctx, d.guid)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if row.UserName != userName || row.GroupGuid != rootGuid {
				log.Printf("⚠️  [RECONCILE] Skipping %s and its subtree: belongs to another tree or user", d.guid)
				stack = append(stack, d)
			}
		}
	}

	skip := make(map[*descriptor]bool)
	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if skip[d] {
			continue
		}
		skip[d] = true
		if d.guid != uuid.Nil {
			delete(p.keep, d.guid)
			stack = append(stack, p.children[d.guid]...)
		}
	}
	return skip, nil
}

// rebuild replaces the stored topology with the one in descs.
func (s *ReconcileService) rebuild(ctx context.Context, userName string, root *models.Pinecone, descs []*descriptor, limits tree.Limits) (*SaveResult, error) {
	p, err := planRebuild(root.Guid, descs)
	if err != nil {
		return nil, err
	}
	if err := p.checkLimits(limits); err != nil {
		return nil, err
	}

	result := &SaveResult{Strategy: StrategyStructure}
	now := s.now()

	err = s.store.WithinTx(ctx, func(tx PineconeStore) error {
		*result = SaveResult{Strategy: StrategyStructure}

		storedRoot, err := tx.FindByGuid(ctx, root.Guid)
		if err != nil {
			return err
		}
		if err := checkTreeRoot(storedRoot, userName); err != nil {
			return err
		}

		old, err := loadSubtree(ctx, tx, storedRoot)
		if err != nil {
			return err
		}
		oldByGuid := make(map[uuid.UUID]*models.Pinecone, len(old))
		for _, row := range old {
			if row.UserName != userName || row.GroupGuid != storedRoot.Guid {
				return fmt.Errorf("pinecone %s in tree %s: %w", row.Guid, storedRoot.Guid, ErrUnauthorized)
			}
			oldByGuid[row.Guid] = row
		}

		skip, err := s.foreignSubtrees(ctx, tx, userName, storedRoot.Guid, p, oldByGuid)
		if err != nil {
			return err
		}
		result.Skipped = len(skip)

		rootContent, err := s.vault.Seal(userName, p.root.content, storedRoot.IsPublic)
		if err != nil {
			return err
		}
		storedRoot.Title = tree.ResolveTitle(p.root.title, p.root.content)
		storedRoot.Content = rootContent
		storedRoot.UpdatedAt = now
		if err := tx.Update(ctx, storedRoot); err != nil {
			return err
		}
		result.Updated++

		// children go before their parents
		for i := len(old) - 1; i > 0; i-- {
			row := old[i]
			if p.keep[row.Guid] {
				continue
			}
			if err := tx.Remove(ctx, row); err != nil {
				return err
			}
			result.Deleted++
		}

		queue := []uuid.UUID{storedRoot.Guid}
		for len(queue) > 0 {
			parent := queue[0]
			queue = queue[1:]

			order := 0
			for _, d := range p.children[parent] {
				if skip[d] {
					continue
				}
				parentGuid := parent
				guid := d.guid
				if guid == uuid.Nil {
					guid = s.newGuid()
				}

				// foreign rows were filtered out above
				existing := oldByGuid[guid]
				if existing != nil {
					content, err := s.vault.Seal(userName, d.content, existing.IsPublic)
					if err != nil {
						return err
					}
					existing.ParentGuid = &parentGuid
					existing.Order = order
					existing.Title = tree.ResolveTitle(d.title, d.content)
					existing.Content = content
					existing.UpdatedAt = now
					if err := tx.Update(ctx, existing); err != nil {
						return err
					}
					result.Updated++
				} else {
					content, err := s.vault.Seal(userName, d.content, d.isPublic)
					if err != nil {
						return err
					}
					row := &models.Pinecone{
						Guid:       guid,
						Title:      tree.ResolveTitle(d.title, d.content),
						Content:    content,
						GroupGuid:  storedRoot.Guid,
						ParentGuid: &parentGuid,
						Order:      order,
						IsPublic:   d.isPublic,
						UserName:   userName,
						CreatedAt:  now,
						UpdatedAt:  now,
					}
					if err := tx.Insert(ctx, row); err != nil {
						return err
					}
					result.Inserted++
				}
				order++

				if d.guid != uuid.Nil {
					queue = append(queue, guid)
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to rebuild tree %s: %w", root.Guid, err)
	}
	return result, nil
}

// DeleteNode removes a non-root node with all of its descendants and closes
// the gap it leaves among its siblings. It returns the former parent's guid.
func (s *ReconcileService) DeleteNode(ctx context.Context, userName string, guid uuid.UUID) (uuid.UUID, error) {
	node, err := s.store.FindByGuid(ctx, guid)
	if err != nil {
		return uuid.Nil, err
	}
	if node.UserName != userName {
		return uuid.Nil, fmt.Errorf("pinecone %s: %w", guid, ErrUnauthorized)
	}
	if node.IsRoot() {
		return uuid.Nil, fmt.Errorf("%w: %s is a tree root, move the tree to the trash instead", ErrValidation, guid)
	}

	parent := *node.ParentGuid
	removed := 0
	err = s.store.WithinTx(ctx, func(tx PineconeStore) error {
		removed = 0

		node, err := tx.FindByGuid(ctx, guid)
		if err != nil {
			return err
		}
		if node.UserName != userName {
			return fmt.Errorf("pinecone %s: %w", guid, ErrUnauthorized)
		}

		subtree, err := loadSubtree(ctx, tx, node)
		if err != nil {
			return err
		}
		for i := len(subtree) - 1; i >= 0; i-- {
			if subtree[i].UserName != userName {
				continue
			}
			if err := tx.Remove(ctx, subtree[i]); err != nil {
				return err
			}
			removed++
		}

		return reindexChildren(ctx, tx, parent, s.now())
	})
	recordDelete(removed, err)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("failed to delete pinecone %s: %w", guid, err)
	}

	log.Printf("🗑️  [RECONCILE] %s deleted %s and %d descendants", userName, guid, removed-1)
	return parent, nil
}

// reindexChildren rewrites the children of parent to orders 0..n-1.
func reindexChildren(ctx context.Context, store PineconeStore, parent uuid.UUID, now time.Time) error {
	siblings, err := store.FindChildren(ctx, parent)
	if err != nil {
		return err
	}
	for i := range siblings {
		if siblings[i].Order == i {
			continue
		}
		siblings[i].Order = i
		siblings[i].UpdatedAt = now
		if err := store.Update(ctx, &siblings[i]); err != nil {
			return err
		}
	}
	return nil
}
