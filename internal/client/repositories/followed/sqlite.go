package followed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/common"
	"github.com/pulldeck/pulldeck/internal/dbx"
)

// Table names backing the two disjoint stores.
const (
	TableFollowed = "followed"
	TablePinned   = "pinned"
)

type SQLiteRepository struct {
	db    dbx.DBTX
	table string
}

// NewFollowedRepository returns the repository over the followed table.
func NewFollowedRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, table: TableFollowed}
}

// NewPinnedRepository returns the repository over the pinned table.
func NewPinnedRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, table: TablePinned}
}

func (r *SQLiteRepository) Insert(ctx context.Context, res *models.FollowedResource) error {
	prefs, err := json.Marshal(res.Prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (id, provider, title, commit_count, comment_count,
			approved_count, changes_requested_count, merge_status, is_merged,
			updated_at, prefs, followed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, r.table)

	result, err := r.db.ExecContext(ctx, q,
		res.ID, res.Provider, res.Title,
		res.Snapshot.CommitCount, res.Snapshot.CommentCount,
		res.Snapshot.ApprovedCount, res.Snapshot.ChangesRequestedCount,
		res.Snapshot.MergeStatus, res.Snapshot.IsMerged,
		res.Snapshot.UpdatedAt.UTC(), string(prefs), res.FollowedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", r.table, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrAlreadyFollowing
	}
	return nil
}

const selectColumns = `id, provider, title, commit_count, comment_count,
	approved_count, changes_requested_count, merge_status, is_merged,
	updated_at, prefs, followed_at`

func (r *SQLiteRepository) scan(row interface{ Scan(...any) error }) (*models.FollowedResource, error) {
	var res models.FollowedResource
	var prefs string
	var updatedAt, followedAt time.Time

	err := row.Scan(&res.ID, &res.Provider, &res.Title,
		&res.Snapshot.CommitCount, &res.Snapshot.CommentCount,
		&res.Snapshot.ApprovedCount, &res.Snapshot.ChangesRequestedCount,
		&res.Snapshot.MergeStatus, &res.Snapshot.IsMerged,
		&updatedAt, &prefs, &followedAt)
	if err != nil {
		return nil, err
	}

	res.Snapshot.UpdatedAt = updatedAt
	res.FollowedAt = followedAt
	if err := json.Unmarshal([]byte(prefs), &res.Prefs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prefs: %w", err)
	}
	return &res, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.FollowedResource, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, r.table)
	res, err := r.scan(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", r.table, id, err)
	}
	return res, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.FollowedResource, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY followed_at ASC, id ASC`, selectColumns, r.table)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.table, err)
	}
	defer rows.Close()

	var result []models.FollowedResource
	for rows.Next() {
		res, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", r.table, err)
		}
		result = append(result, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", r.table, err)
	}
	return result, nil
}

func (r *SQLiteRepository) UpdateSnapshot(ctx context.Context, id string, snap models.Snapshot) error {
	q := fmt.Sprintf(`
		UPDATE %s SET commit_count = ?, comment_count = ?, approved_count = ?,
			changes_requested_count = ?, merge_status = ?, is_merged = ?, updated_at = ?
		WHERE id = ?
	`, r.table)

	result, err := r.db.ExecContext(ctx, q,
		snap.CommitCount, snap.CommentCount, snap.ApprovedCount,
		snap.ChangesRequestedCount, snap.MergeStatus, snap.IsMerged,
		snap.UpdatedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update %s[%s] snapshot: %w", r.table, id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) UpdatePrefs(ctx context.Context, id string, prefs models.NotificationPrefs) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}

	q := fmt.Sprintf(`UPDATE %s SET prefs = ? WHERE id = ?`, r.table)
	result, err := r.db.ExecContext(ctx, q, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to update %s[%s] prefs: %w", r.table, id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table)
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", r.table, id, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.table, err)
	}
	return n, nil
}

func (r *SQLiteRepository) EvictOldest(ctx context.Context, keep int) (int, error) {
	q := fmt.Sprintf(`
		DELETE FROM %s WHERE id NOT IN (
			SELECT id FROM %s ORDER BY followed_at DESC, id DESC LIMIT ?
		)
	`, r.table, r.table)

	result, err := r.db.ExecContext(ctx, q, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to evict from %s: %w", r.table, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE followed_at < ?`, r.table)
	result, err := r.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", r.table, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
