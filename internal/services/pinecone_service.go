package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pinetree/internal/logging"
	"pinetree/internal/models"
	"pinetree/internal/tree"
)

// PineconeService owns the lifecycle of trees: creation, loading, saving,
// trash and public reads.
type PineconeService struct {
	store     *SQLPineconeStore
	reconcile *ReconcileService
	tiers     *TierService
	vault     *ContentVault
	audit     *AuditService
	render    *RenderService
	now       func() time.Time
}

// NewPineconeService creates a new tree service. vault and audit may be nil.
func NewPineconeService(store *SQLPineconeStore, tiers *TierService, vault *ContentVault, audit *AuditService, render *RenderService) *PineconeService {
	if render == nil {
		render = NewRenderService()
	}
	return &PineconeService{
		store:     store,
		reconcile: NewReconcileService(store, vault),
		tiers:     tiers,
		vault:     vault,
		audit:     audit,
		render:    render,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateTree inserts a new private root for user.
func (s *PineconeService) CreateTree(ctx context.Context, userName, title, content string) (*models.Pinecone, error) {
	sealed, err := s.vault.Seal(userName, content, false)
	if err != nil {
		return nil, err
	}

	guid := uuid.New()
	now := s.now()
	root := &models.Pinecone{
		Guid:      guid,
		Title:     tree.ResolveTitle(title, content),
		Content:   sealed,
		GroupGuid: guid,
		UserName:  userName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(ctx, root); err != nil {
		return nil, err
	}
	root.Content = content

	s.audit.Record(ctx, AuditCreateTree, userName, guid, guid, nil)
	log.Printf("🌱 [TREE] %s created tree %s", userName, guid)
	return root, nil
}

// ownedRoot loads rootGuid and checks it is a live root owned by user.
func (s *PineconeService) ownedRoot(ctx context.Context, userName string, rootGuid uuid.UUID) (*models.Pinecone, error) {
	root, err := s.store.FindByGuid(ctx, rootGuid)
	if err != nil {
		return nil, err
	}
	if err := checkTreeRoot(root, userName); err != nil {
		return nil, err
	}
	return root, nil
}

// LoadTree returns every row of the tree with plaintext content.
func (s *PineconeService) LoadTree(ctx context.Context, userName string, rootGuid uuid.UUID) ([]models.Pinecone, error) {
	if _, err := s.ownedRoot(ctx, userName, rootGuid); err != nil {
		return nil, err
	}
	rows, err := s.store.FindGroup(ctx, rootGuid)
	if err != nil {
		return nil, err
	}
	if err := s.vault.OpenRows(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadViewModel materialises a stored tree as an editable model.
func (s *PineconeService) LoadViewModel(ctx context.Context, userName string, rootGuid uuid.UUID) (*tree.Node, error) {
	rows, err := s.LoadTree(ctx, userName, rootGuid)
	if err != nil {
		return nil, err
	}
	return tree.FromPinecones(rows, rootGuid)
}

// ListTrees returns the user's live trees, most recently updated first.
func (s *PineconeService) ListTrees(ctx context.Context, userName string) ([]models.TreeSummary, error) {
	return s.listRoots(ctx, userName, false)
}

// ListTrash returns the user's trashed trees.
func (s *PineconeService) ListTrash(ctx context.Context, userName string) ([]models.TreeSummary, error) {
	return s.listRoots(ctx, userName, true)
}

func (s *PineconeService) listRoots(ctx context.Context, userName string, trashed bool) ([]models.TreeSummary, error) {
	roots, err := s.store.ListRoots(ctx, userName, trashed)
	if err != nil {
		return nil, err
	}
	out := make([]models.TreeSummary, 0, len(roots))
	for _, r := range roots {
		out = append(out, models.TreeSummary{
			Guid:      r.Guid,
			Title:     r.Title,
			IsPublic:  r.IsPublic,
			UpdatedAt: r.UpdatedAt,
			DeletedAt: r.DeletedAt,
		})
	}
	return out, nil
}

// SaveTree hands the tree to the reconciler with the user's tier limits.
// Private rows are sealed as they are written. Visibility of existing rows
// only changes through SetVisibility.
func (s *PineconeService) SaveTree(ctx context.Context, userName string, req *models.SaveTreeRequest) (*SaveResult, error) {
	limits := tree.Unlimited
	if s.tiers != nil {
		limits = s.tiers.TreeLimits(ctx, userName)
	}

	result, err := s.reconcile.SaveTree(ctx, userName, req, limits)
	if err != nil {
		logging.WithTree(userName, req.RootID).Warn("tree save rejected", "reason", failureReason(err), "nodes", len(req.Nodes))
		return nil, err
	}

	for _, n := range req.Nodes {
		if n.Guid != "" {
			s.render.Invalidate(n.Guid)
		}
	}
	rootGuid, _ := uuid.Parse(req.RootID)
	s.audit.Record(ctx, AuditSaveTree, userName, rootGuid, uuid.Nil, map[string]any{
		"strategy": result.Strategy,
		"updated":  result.Updated,
		"inserted": result.Inserted,
		"deleted":  result.Deleted,
		"skipped":  result.Skipped,
	})
	return result, nil
}

// DeleteNode removes a node and its subtree and returns the parent guid.
func (s *PineconeService) DeleteNode(ctx context.Context, userName string, guid uuid.UUID) (uuid.UUID, error) {
	node, err := s.store.FindByGuid(ctx, guid)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.checkTreeLive(ctx, node); err != nil {
		return uuid.Nil, err
	}

	parent, err := s.reconcile.DeleteNode(ctx, userName, guid)
	if err != nil {
		return uuid.Nil, err
	}
	s.render.Invalidate(guid.String())
	s.audit.Record(ctx, AuditDeleteNode, userName, node.GroupGuid, guid, nil)
	return parent, nil
}

// checkTreeLive returns ErrNotFound when the tree holding p is trashed.
func (s *PineconeService) checkTreeLive(ctx context.Context, p *models.Pinecone) error {
	root := p
	if !p.IsRoot() {
		var err error
		if root, err = s.store.FindByGuid(ctx, p.GroupGuid); err != nil {
			return err
		}
	}
	if root.DeletedAt != nil {
		return fmt.Errorf("tree %s is in the trash: %w", root.Guid, ErrNotFound)
	}
	return nil
}

// TrashTree moves a whole tree to the trash.
func (s *PineconeService) TrashTree(ctx context.Context, userName string, rootGuid uuid.UUID) error {
	root, err := s.ownedRoot(ctx, userName, rootGuid)
	if err != nil {
		return err
	}
	now := s.now()
	root.DeletedAt = &now
	root.UpdatedAt = now
	if err := s.store.Update(ctx, root); err != nil {
		return err
	}

	s.audit.Record(ctx, AuditTrashTree, userName, rootGuid, rootGuid, nil)
	log.Printf("🗑️  [TREE] %s moved tree %s to the trash", userName, rootGuid)
	return nil
}

// RestoreTree takes a tree back out of the trash.
func (s *PineconeService) RestoreTree(ctx context.Context, userName string, rootGuid uuid.UUID) error {
	root, err := s.store.FindByGuid(ctx, rootGuid)
	if err != nil {
		return err
	}
	if !root.IsRoot() {
		return fmt.Errorf("%w: %s is not a tree root", ErrValidation, rootGuid)
	}
	if root.UserName != userName {
		return fmt.Errorf("tree %s: %w", rootGuid, ErrUnauthorized)
	}
	if root.DeletedAt == nil {
		return fmt.Errorf("%w: tree %s is not in the trash", ErrValidation, rootGuid)
	}

	root.DeletedAt = nil
	root.UpdatedAt = s.now()
	if err := s.store.Update(ctx, root); err != nil {
		return err
	}

	s.audit.Record(ctx, AuditRestoreTree, userName, rootGuid, rootGuid, nil)
	log.Printf("♻️  [TREE] %s restored tree %s", userName, rootGuid)
	return nil
}

// PurgeTrash permanently deletes trees trashed before cutoff. Each tree is
// removed in its own transaction; a failure stops the sweep.
func (s *PineconeService) PurgeTrash(ctx context.Context, cutoff time.Time) (int, error) {
	roots, err := s.store.ListTrashedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, r := range roots {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		removed, err := s.store.PurgeTree(ctx, r.Guid, cutoff)
		if err != nil {
			return purged, fmt.Errorf("failed to purge tree %s: %w", r.Guid, err)
		}
		if removed == 0 {
			continue
		}
		purged++
		s.audit.Record(ctx, AuditPurgeTree, r.UserName, r.Guid, r.Guid, map[string]any{"rows": removed})
	}

	if purged > 0 {
		log.Printf("🧹 [TREE] Purged %d trashed trees older than %s", purged, cutoff.Format(time.RFC3339))
	}
	return purged, nil
}

// SetVisibility makes a single node public or private. Content is
// re-sealed to match.
func (s *PineconeService) SetVisibility(ctx context.Context, userName string, guid uuid.UUID, isPublic bool) (*models.Pinecone, error) {
	node, err := s.store.FindByGuid(ctx, guid)
	if err != nil {
		return nil, err
	}
	if node.UserName != userName {
		return nil, fmt.Errorf("pinecone %s: %w", guid, ErrUnauthorized)
	}
	if err := s.checkTreeLive(ctx, node); err != nil {
		return nil, err
	}

	plain, err := s.vault.Open(node.UserName, node.Content)
	if err != nil {
		return nil, err
	}
	if node.IsPublic != isPublic {
		if node.Content, err = s.vault.Seal(node.UserName, plain, isPublic); err != nil {
			return nil, err
		}
		node.IsPublic = isPublic
		node.UpdatedAt = s.now()
		if err := s.store.Update(ctx, node); err != nil {
			return nil, err
		}
		s.render.Invalidate(guid.String())
		s.audit.Record(ctx, AuditSetVisibility, userName, node.GroupGuid, guid, map[string]any{"isPublic": isPublic})
	}

	node.Content = plain
	return node, nil
}

// GetPublic returns a public node for anonymous readers.
func (s *PineconeService) GetPublic(ctx context.Context, guid uuid.UUID) (*models.Pinecone, error) {
	node, err := s.store.FindByGuid(ctx, guid)
	if err != nil {
		return nil, err
	}
	if !node.IsPublic {
		return nil, fmt.Errorf("pinecone %s: %w", guid, ErrNotFound)
	}
	if err := s.checkTreeLive(ctx, node); err != nil {
		return nil, err
	}
	if node.Content, err = s.vault.Open(node.UserName, node.Content); err != nil {
		return nil, err
	}
	return node, nil
}

// RenderPublic returns the HTML page of a public node.
func (s *PineconeService) RenderPublic(ctx context.Context, guid uuid.UUID) (string, error) {
	node, err := s.GetPublic(ctx, guid)
	if err != nil {
		return "", err
	}
	return s.render.RenderPage(node)
}

// OwnsNode reports whether userName owns a live node, for attaching images.
func (s *PineconeService) OwnsNode(ctx context.Context, userName string, guid uuid.UUID) (*models.Pinecone, error) {
	node, err := s.store.FindByGuid(ctx, guid)
	if err != nil {
		return nil, err
	}
	if node.UserName != userName {
		return nil, fmt.Errorf("pinecone %s: %w", guid, ErrUnauthorized)
	}
	if err := s.checkTreeLive(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}
