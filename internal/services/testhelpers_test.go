package services

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"pinetree/internal/database"
	"pinetree/internal/models"
	"pinetree/internal/tree"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

// setupTestDB opens a fresh SQLite database with the schema applied.
func setupTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()
	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "pinetree.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	return db, func() { db.Close() }
}

// seedTree stores root "R" owned by user plus the given parent/child edges
// ("" is the root). Children get orders in the sequence they are listed.
func seedTree(t *testing.T, store *SQLPineconeStore, user string, edges ...[2]string) map[string]*models.Pinecone {
	t.Helper()
	ctx := context.Background()

	rootGuid := uuid.New()
	root := &models.Pinecone{
		Guid: rootGuid, Title: "R", Content: "root body", GroupGuid: rootGuid, UserName: user,
	}
	require.NoError(t, store.Insert(ctx, root))

	byTitle := map[string]*models.Pinecone{"R": root}
	next := map[uuid.UUID]int{}
	for _, e := range edges {
		parent := root
		if e[0] != "" {
			parent = byTitle[e[0]]
			require.NotNil(t, parent, "unknown parent %q", e[0])
		}
		parentGuid := parent.Guid
		row := &models.Pinecone{
			Guid:       uuid.New(),
			Title:      e[1],
			Content:    e[1] + " body",
			GroupGuid:  rootGuid,
			ParentGuid: &parentGuid,
			Order:      next[parentGuid],
			UserName:   user,
		}
		next[parentGuid]++
		require.NoError(t, store.Insert(ctx, row))
		byTitle[e[1]] = row
	}
	return byTitle
}

// loadViewModel reads a stored tree back into the editing model.
func loadViewModel(t *testing.T, store *SQLPineconeStore, root uuid.UUID) *tree.Node {
	t.Helper()
	rows, err := store.FindGroup(context.Background(), root)
	require.NoError(t, err)
	n, err := tree.FromPinecones(rows, root)
	require.NoError(t, err)
	return n
}

// requireDenseOrders checks that every parent's children use orders 0..k-1.
func requireDenseOrders(t *testing.T, store *SQLPineconeStore, root uuid.UUID) {
	t.Helper()
	rows, err := store.FindGroup(context.Background(), root)
	require.NoError(t, err)

	roots := 0
	orders := map[uuid.UUID][]int{}
	for _, r := range rows {
		require.Equal(t, root, r.GroupGuid, "group of %s", r.Title)
		if r.ParentGuid == nil {
			roots++
			continue
		}
		orders[*r.ParentGuid] = append(orders[*r.ParentGuid], r.Order)
	}
	require.Equal(t, 1, roots, "exactly one root")
	for parent, got := range orders {
		sort.Ints(got)
		for i, o := range got {
			require.Equal(t, i, o, "orders under %s: %v", parent, got)
		}
	}
}

func descriptorsFor(root *tree.Node) *models.SaveTreeRequest {
	return &models.SaveTreeRequest{
		RootID: root.Guid.String(),
		Nodes:  tree.Flatten(root),
	}
}

func strPtr(s string) *string { return &s }
