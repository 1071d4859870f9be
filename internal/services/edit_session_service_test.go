package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinetree/internal/models"
	"pinetree/internal/tree"
)

func newTestSessions(t *testing.T, limits map[string]models.TierLimits) (*EditSessionService, *SQLPineconeStore) {
	t.Helper()
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)
	store := NewPineconeStore(db)
	tiers := NewTierService(nil, limits)
	pinecones := NewPineconeService(store, tiers, nil, nil, nil)
	return NewEditSessionService(pinecones, tiers, time.Minute), store
}

func childTitles(v *tree.View) []string {
	out := make([]string, len(v.Children))
	for i, c := range v.Children {
		out[i] = c.Title
	}
	return out
}

func TestEditSession_MovesAndCommit(t *testing.T) {
	sessions, store := newTestSessions(t, nil)
	ctx := context.Background()

	seeded := seedTree(t, store, alice, [2]string{"", "a"}, [2]string{"", "b"}, [2]string{"", "c"})
	root := seeded["R"].Guid

	view, err := sessions.Open(ctx, alice, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, childTitles(view))
	assert.True(t, view.IsCurrent)

	res, err := sessions.Apply(ctx, alice, root, &EditOp{Op: OpMoveUp, Guid: seeded["c"].Guid.String()})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"a", "c", "b"}, childTitles(res.Tree))

	res, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpMoveUp, Guid: seeded["a"].Guid.String()})
	require.NoError(t, err)
	assert.False(t, res.Changed, "first sibling cannot move up")

	res, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpMoveRight, Guid: seeded["c"].Guid.String()})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"a", "b"}, childTitles(res.Tree))
	assert.Equal(t, []string{"c"}, childTitles(res.Tree.Children[0]))

	committed, err := sessions.Commit(ctx, alice, root)
	require.NoError(t, err)
	assert.True(t, committed.HasStructuralChanges)
	assert.Equal(t, StrategyStructure, committed.Save.Strategy)

	stored := loadViewModel(t, store, root)
	require.Len(t, stored.Children, 2)
	assert.Equal(t, "c", stored.Children[0].Children[0].Title)
	requireDenseOrders(t, store, root)

	// the baseline moved forward with the commit
	committed, err = sessions.Commit(ctx, alice, root)
	require.NoError(t, err)
	assert.False(t, committed.HasStructuralChanges)
	assert.Equal(t, StrategyContent, committed.Save.Strategy)
}

func TestEditSession_EditUndoRedo(t *testing.T) {
	sessions, store := newTestSessions(t, nil)
	ctx := context.Background()

	seeded := seedTree(t, store, alice, [2]string{"", "a"})
	root := seeded["R"].Guid
	a := seeded["a"].Guid.String()

	_, err := sessions.Open(ctx, alice, root)
	require.NoError(t, err)

	res, err := sessions.Apply(ctx, alice, root, &EditOp{Op: OpEdit, Guid: a, Content: strPtr("new text")})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Tree.Children[0].CanUndo)

	res, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpUndo, Guid: a})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "a body", res.Tree.Children[0].Content)

	res, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpRedo, Guid: a})
	require.NoError(t, err)
	assert.Equal(t, "new text", res.Tree.Children[0].Content)

	committed, err := sessions.Commit(ctx, alice, root)
	require.NoError(t, err)
	assert.False(t, committed.HasStructuralChanges)

	row, err := store.FindByGuid(ctx, seeded["a"].Guid)
	require.NoError(t, err)
	assert.Equal(t, "new text", row.Content)
}

func TestEditSession_AddChildAndDelete(t *testing.T) {
	sessions, store := newTestSessions(t, map[string]models.TierLimits{
		models.TierFree: {MaxDepth: 5, MaxFilesPerTree: 3},
	})
	ctx := context.Background()

	seeded := seedTree(t, store, alice, [2]string{"", "a"})
	root := seeded["R"].Guid

	_, err := sessions.Open(ctx, alice, root)
	require.NoError(t, err)

	res, err := sessions.Apply(ctx, alice, root, &EditOp{Op: OpAddChild, Guid: seeded["a"].Guid.String(), Content: strPtr("## Fresh idea")})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, res.Guid)
	added := res.Tree.Children[0].Children[0]
	assert.Equal(t, "Fresh idea", added.Title)
	assert.True(t, added.IsCurrent)

	_, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpAddChild, Guid: root.String()})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	_, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpDelete, Guid: root.String()})
	assert.ErrorIs(t, err, ErrValidation)

	res, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpDelete, Guid: seeded["a"].Guid.String()})
	require.NoError(t, err)
	assert.Equal(t, root, res.Guid, "focus moves to the parent")
	assert.Empty(t, res.Tree.Children)

	_, err = sessions.Commit(ctx, alice, root)
	require.NoError(t, err)
	rows, err := store.FindGroup(ctx, root)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestEditSession_Errors(t *testing.T) {
	sessions, store := newTestSessions(t, nil)
	ctx := context.Background()

	seeded := seedTree(t, store, alice, [2]string{"", "a"})
	root := seeded["R"].Guid

	_, err := sessions.Apply(ctx, alice, root, &EditOp{Op: OpSelect, Guid: root.String()})
	assert.ErrorIs(t, err, ErrNotFound, "no session yet")

	_, err = sessions.Open(ctx, bob, root)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = sessions.Open(ctx, alice, root)
	require.NoError(t, err)

	_, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpSelect, Guid: uuid.NewString()})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = sessions.Apply(ctx, alice, root, &EditOp{Op: "explode", Guid: root.String()})
	assert.ErrorIs(t, err, ErrValidation)

	sessions.Discard(alice, root)
	_, err = sessions.Commit(ctx, alice, root)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditSession_TitleOnlyEditKeepsContent(t *testing.T) {
	sessions, store := newTestSessions(t, nil)
	ctx := context.Background()

	seeded := seedTree(t, store, alice, [2]string{"", "a"})
	root := seeded["R"].Guid
	a := seeded["a"].Guid.String()

	_, err := sessions.Open(ctx, alice, root)
	require.NoError(t, err)

	res, err := sessions.Apply(ctx, alice, root, &EditOp{Op: OpEdit, Guid: a, Title: "renamed"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "renamed", res.Tree.Children[0].Title)
	assert.Equal(t, "a body", res.Tree.Children[0].Content)
	assert.False(t, res.Tree.Children[0].CanUndo, "no content change was recorded")

	res, err = sessions.Apply(ctx, alice, root, &EditOp{Op: OpEdit, Guid: a, Content: strPtr("")})
	require.NoError(t, err)
	assert.True(t, res.Changed, "an explicit empty body clears the content")
	assert.Equal(t, "", res.Tree.Children[0].Content)

	_, err = sessions.Commit(ctx, alice, root)
	require.NoError(t, err)
	row, err := store.FindByGuid(ctx, seeded["a"].Guid)
	require.NoError(t, err)
	assert.Equal(t, "renamed", row.Title)
	assert.Equal(t, "", row.Content)
}
