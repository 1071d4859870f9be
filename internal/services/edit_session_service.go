package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"pinetree/internal/models"
	"pinetree/internal/tree"
)

// Edit operations
const (
	OpSelect    = "select"
	OpMoveUp    = "move_up"
	OpMoveDown  = "move_down"
	OpMoveLeft  = "move_left"
	OpMoveRight = "move_right"
	OpAddChild  = "add_child"
	OpDelete    = "delete"
	OpEdit      = "edit"
	OpUndo      = "undo"
	OpRedo      = "redo"
)

// EditOp is one mutation applied to a server-held tree. For edit, a nil
// Content leaves the body alone and an empty Title keeps the title.
type EditOp struct {
	Op      string  `json:"op" validate:"required,oneof=select move_up move_down move_left move_right add_child delete edit undo redo"`
	Guid    string  `json:"guid" validate:"required,uuid"`
	Title   string  `json:"title" validate:"max=512"`
	Content *string `json:"content"`
}

func (op *EditOp) content() string {
	if op.Content == nil {
		return ""
	}
	return *op.Content
}

// EditResult reports what an op did. Guid is the new node for add_child
// and the node that received focus for delete.
type EditResult struct {
	Changed bool       `json:"changed"`
	Guid    uuid.UUID  `json:"guid,omitempty"`
	Tree    *tree.View `json:"tree"`
}

// CommitResult is returned by Commit.
type CommitResult struct {
	HasStructuralChanges bool        `json:"hasStructuralChanges"`
	Save                 *SaveResult `json:"save"`
	Tree                 *tree.View  `json:"tree"`
}

type editSession struct {
	mu       sync.Mutex
	model    *tree.Node
	baseline *tree.Node
}

// EditSessionService keeps editing models on the server for clients that
// do not hold one themselves.
type EditSessionService struct {
	pinecones *PineconeService
	tiers     *TierService
	sessions  *cache.Cache
}

// NewEditSessionService creates a session store. Idle sessions expire
// after ttl.
func NewEditSessionService(pinecones *PineconeService, tiers *TierService, ttl time.Duration) *EditSessionService {
	s := &EditSessionService{
		pinecones: pinecones,
		tiers:     tiers,
		sessions:  cache.New(ttl, ttl/2),
	}
	s.sessions.OnEvicted(func(key string, _ interface{}) {
		log.Printf("⏱️  [SESSION] Edit session %s closed", key)
		setEditSessions(s.sessions.ItemCount())
	})
	return s
}

func sessionKey(userName string, root uuid.UUID) string {
	return userName + ":" + root.String()
}

// Open loads the tree into a fresh session, replacing any previous one.
func (s *EditSessionService) Open(ctx context.Context, userName string, root uuid.UUID) (*tree.View, error) {
	model, err := s.pinecones.LoadViewModel(ctx, userName, root)
	if err != nil {
		return nil, err
	}
	model.IsExpanded = true
	tree.SetCurrent(model, model.Guid)

	sess := &editSession{model: model, baseline: tree.DeepClone(model)}
	s.sessions.SetDefault(sessionKey(userName, root), sess)
	setEditSessions(s.sessions.ItemCount())

	log.Printf("✏️  [SESSION] %s opened tree %s (%d nodes)", userName, root, tree.TotalFileCount(model))
	return tree.ToView(model), nil
}

func (s *EditSessionService) get(userName string, root uuid.UUID) (*editSession, error) {
	key := sessionKey(userName, root)
	v, ok := s.sessions.Get(key)
	if !ok {
		return nil, fmt.Errorf("edit session for %s: %w", root, ErrNotFound)
	}
	// sliding expiry
	s.sessions.SetDefault(key, v)
	return v.(*editSession), nil
}

// Apply runs one op against the session tree.
func (s *EditSessionService) Apply(ctx context.Context, userName string, root uuid.UUID, op *EditOp) (*EditResult, error) {
	sess, err := s.get(userName, root)
	if err != nil {
		return nil, err
	}
	guid, err := uuid.Parse(op.Guid)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid guid %q", ErrValidation, op.Guid)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	node := tree.Find(sess.model, guid)
	if node == nil {
		return nil, fmt.Errorf("node %s in session %s: %w", guid, root, ErrNotFound)
	}

	result := &EditResult{}
	switch op.Op {
	case OpSelect:
		result.Changed = tree.SetCurrent(sess.model, guid) != nil
	case OpMoveUp:
		result.Changed = node.MoveUp()
	case OpMoveDown:
		result.Changed = node.MoveDown()
	case OpMoveLeft:
		result.Changed = node.MoveLeft()
	case OpMoveRight:
		result.Changed = node.MoveRight()
	case OpAddChild:
		editor := tree.Editor{
			Policy:       s.tiers.QuotaPolicy(),
			Professional: s.tiers.IsProfessional(ctx, userName),
		}
		child := editor.AddChild(node, op.Title, op.content())
		if child == nil {
			return nil, fmt.Errorf("%w: tree limit reached for your plan", ErrQuotaExceeded)
		}
		tree.SetCurrent(sess.model, child.Guid)
		result.Changed = true
		result.Guid = child.Guid
	case OpDelete:
		if node.IsRoot() {
			return nil, fmt.Errorf("%w: the root cannot be deleted, move the tree to the trash instead", ErrValidation)
		}
		focus := node.DeleteIncludeChild()
		tree.SetCurrent(sess.model, focus)
		result.Changed = true
		result.Guid = focus
	case OpEdit:
		before := node.Content
		if op.Content != nil {
			node.Edit(*op.Content)
		}
		if op.Title != "" && op.Title != node.Title {
			node.Title = op.Title
			result.Changed = true
		}
		result.Changed = result.Changed || node.Content != before
	case OpUndo:
		_, result.Changed = node.Undo()
	case OpRedo:
		_, result.Changed = node.Redo()
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrValidation, op.Op)
	}

	result.Tree = tree.ToView(sess.model)
	return result, nil
}

// Commit saves the session tree. The structural flag comes from comparing
// against the tree as last loaded or committed. A failed save leaves the
// session untouched so the client can retry.
func (s *EditSessionService) Commit(ctx context.Context, userName string, root uuid.UUID) (*CommitResult, error) {
	sess, err := s.get(userName, root)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	structural := tree.HasStructuralChanges(sess.model, sess.baseline)
	req := &models.SaveTreeRequest{
		RootID:               root.String(),
		HasStructuralChanges: structural,
		Nodes:                tree.Flatten(sess.model),
	}
	saved, err := s.pinecones.SaveTree(ctx, userName, req)
	if err != nil {
		return nil, err
	}
	sess.baseline = tree.DeepClone(sess.model)

	return &CommitResult{
		HasStructuralChanges: structural,
		Save:                 saved,
		Tree:                 tree.ToView(sess.model),
	}, nil
}

// Discard drops the session without saving.
func (s *EditSessionService) Discard(userName string, root uuid.UUID) {
	s.sessions.Delete(sessionKey(userName, root))
}
