package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pinetree/internal/database"
	"pinetree/internal/models"
)

// PineconeStore is the persistence surface the reconciler works against.
type PineconeStore interface {
	// FindByGuid returns ErrNotFound when no row has the guid.
	FindByGuid(ctx context.Context, guid uuid.UUID) (*models.Pinecone, error)
	// FindChildren returns the children of parent ordered by Order.
	FindChildren(ctx context.Context, parent uuid.UUID) ([]models.Pinecone, error)
	Insert(ctx context.Context, p *models.Pinecone) error
	Update(ctx context.Context, p *models.Pinecone) error
	Remove(ctx context.Context, p *models.Pinecone) error
}

// TxPineconeStore runs a batch of store calls atomically.
type TxPineconeStore interface {
	PineconeStore
	WithinTx(ctx context.Context, fn func(PineconeStore) error) error
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLPineconeStore keeps pinecones in the relational database.
type SQLPineconeStore struct {
	db   *database.DB
	q    queryer
	inTx bool
}

// NewPineconeStore creates a store over db.
func NewPineconeStore(db *database.DB) *SQLPineconeStore {
	return &SQLPineconeStore{db: db, q: db}
}

// WithinTx runs fn against a store bound to a single transaction. Calls on
// a store that is already transactional join the outer transaction.
func (s *SQLPineconeStore) WithinTx(ctx context.Context, fn func(PineconeStore) error) error {
	return s.withTx(ctx, func(tx *SQLPineconeStore) error { return fn(tx) })
}

func (s *SQLPineconeStore) withTx(ctx context.Context, fn func(*SQLPineconeStore) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&SQLPineconeStore{db: s.db, q: tx, inTx: true})
	})
}

const pineconeColumns = `id, guid, title, content, group_guid, parent_guid, sort_order, is_public, user_name, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPinecone(row rowScanner) (*models.Pinecone, error) {
	var (
		p           models.Pinecone
		guid, group string
		parent      sql.NullString
		deletedAt   sql.NullTime
	)
	if err := row.Scan(&p.ID, &guid, &p.Title, &p.Content, &group, &parent,
		&p.Order, &p.IsPublic, &p.UserName, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}

	var err error
	if p.Guid, err = uuid.Parse(guid); err != nil {
		return nil, fmt.Errorf("corrupt guid %q on pinecone %d: %w", guid, p.ID, err)
	}
	if p.GroupGuid, err = uuid.Parse(group); err != nil {
		return nil, fmt.Errorf("corrupt group guid %q on pinecone %d: %w", group, p.ID, err)
	}
	if parent.Valid && parent.String != "" {
		pg, err := uuid.Parse(parent.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt parent guid %q on pinecone %d: %w", parent.String, p.ID, err)
		}
		p.ParentGuid = &pg
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return &p, nil
}

func (s *SQLPineconeStore) queryPinecones(ctx context.Context, query string, args ...any) ([]models.Pinecone, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Pinecone
	for rows.Next() {
		p, err := scanPinecone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// FindByGuid loads one pinecone.
func (s *SQLPineconeStore) FindByGuid(ctx context.Context, guid uuid.UUID) (*models.Pinecone, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+pineconeColumns+` FROM pinecones WHERE guid = ?`, guid.String())
	p, err := scanPinecone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pinecone %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pinecone %s: %w", guid, err)
	}
	return p, nil
}

// FindChildren loads the direct children of parent.
func (s *SQLPineconeStore) FindChildren(ctx context.Context, parent uuid.UUID) ([]models.Pinecone, error) {
	children, err := s.queryPinecones(ctx,
		`SELECT `+pineconeColumns+` FROM pinecones WHERE parent_guid = ? ORDER BY sort_order, id`, parent.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load children of %s: %w", parent, err)
	}
	return children, nil
}

// FindGroup loads every row of a tree in one query.
func (s *SQLPineconeStore) FindGroup(ctx context.Context, group uuid.UUID) ([]models.Pinecone, error) {
	rows, err := s.queryPinecones(ctx,
		`SELECT `+pineconeColumns+` FROM pinecones WHERE group_guid = ? ORDER BY sort_order, id`, group.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %s: %w", group, err)
	}
	return rows, nil
}

// ListRoots returns the user's tree roots, trashed or live.
func (s *SQLPineconeStore) ListRoots(ctx context.Context, userName string, trashed bool) ([]models.Pinecone, error) {
	cond := `deleted_at IS NULL`
	if trashed {
		cond = `deleted_at IS NOT NULL`
	}
	rows, err := s.queryPinecones(ctx,
		`SELECT `+pineconeColumns+` FROM pinecones
		 WHERE user_name = ? AND parent_guid IS NULL AND `+cond+`
		 ORDER BY updated_at DESC, id DESC`, userName)
	if err != nil {
		return nil, fmt.Errorf("failed to list trees for %s: %w", userName, err)
	}
	return rows, nil
}

// ListTrashedBefore returns roots trashed before cutoff.
func (s *SQLPineconeStore) ListTrashedBefore(ctx context.Context, cutoff time.Time) ([]models.Pinecone, error) {
	rows, err := s.queryPinecones(ctx,
		`SELECT `+pineconeColumns+` FROM pinecones
		 WHERE parent_guid IS NULL AND deleted_at IS NOT NULL AND deleted_at < ?`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list trashed trees: %w", err)
	}
	return rows, nil
}

// Insert adds a row and fills in its id and timestamps.
func (s *SQLPineconeStore) Insert(ctx context.Context, p *models.Pinecone) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO pinecones (guid, title, content, group_guid, parent_guid, sort_order, is_public, user_name, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Guid.String(), p.Title, p.Content, p.GroupGuid.String(), nullableGuid(p.ParentGuid),
		p.Order, p.IsPublic, p.UserName, p.CreatedAt.UTC(), p.UpdatedAt.UTC(), nullableTime(p.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert pinecone %s: %w", p.Guid, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read id of pinecone %s: %w", p.Guid, err)
	}
	p.ID = id
	return nil
}

// Update rewrites the mutable columns of a row identified by guid.
func (s *SQLPineconeStore) Update(ctx context.Context, p *models.Pinecone) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE pinecones
		SET title = ?, content = ?, parent_guid = ?, sort_order = ?, is_public = ?, updated_at = ?, deleted_at = ?
		WHERE guid = ?`,
		p.Title, p.Content, nullableGuid(p.ParentGuid), p.Order, p.IsPublic,
		p.UpdatedAt.UTC(), nullableTime(p.DeletedAt), p.Guid.String())
	if err != nil {
		return fmt.Errorf("failed to update pinecone %s: %w", p.Guid, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pinecone %s: %w", p.Guid, ErrNotFound)
	}
	return nil
}

// Remove deletes a single row. Children are not touched.
func (s *SQLPineconeStore) Remove(ctx context.Context, p *models.Pinecone) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM pinecones WHERE guid = ?`, p.Guid.String()); err != nil {
		return fmt.Errorf("failed to delete pinecone %s: %w", p.Guid, err)
	}
	return nil
}

// RemoveGroup deletes every row of a tree.
func (s *SQLPineconeStore) RemoveGroup(ctx context.Context, group uuid.UUID) (int64, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM pinecones WHERE group_guid = ?`, group.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete tree %s: %w", group, err)
	}
	return result.RowsAffected()
}

// PurgeTree permanently deletes a trashed tree if it was trashed before
// cutoff. It returns the number of rows removed, 0 when the tree was
// restored or is already gone.
func (s *SQLPineconeStore) PurgeTree(ctx context.Context, root uuid.UUID, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *SQLPineconeStore) error {
		row, err := tx.FindByGuid(ctx, root)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !row.IsRoot() || row.DeletedAt == nil || !row.DeletedAt.Before(cutoff) {
			return nil
		}
		removed, err = tx.RemoveGroup(ctx, row.Guid)
		return err
	})
	return removed, err
}

func nullableGuid(g *uuid.UUID) any {
	if g == nil {
		return nil
	}
	return g.String()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// loadSubtree walks the stored tree under root breadth-first and returns
// every row, root first.
func loadSubtree(ctx context.Context, store PineconeStore, root *models.Pinecone) ([]*models.Pinecone, error) {
	out := []*models.Pinecone{root}
	seen := map[uuid.UUID]bool{root.Guid: true}
	for i := 0; i < len(out); i++ {
		children, err := store.FindChildren(ctx, out[i].Guid)
		if err != nil {
			return nil, err
		}
		for j := range children {
			c := &children[j]
			if seen[c.Guid] {
				continue
			}
			seen[c.Guid] = true
			out = append(out, c)
		}
	}
	return out, nil
}
