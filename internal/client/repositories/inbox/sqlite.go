package inbox

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

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, n *models.Notification) error {
	details, err := json.Marshal(n.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO inbox (id, resource_id, type, details, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, n.ResourceID, string(n.Type), string(details), n.CreatedAt.UTC(), n.Read)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]models.Notification, error) {
	q := `SELECT id, resource_id, type, details, created_at, read FROM inbox
		ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	defer rows.Close()

	var result []models.Notification
	for rows.Next() {
		var n models.Notification
		var typ, details string
		var createdAt time.Time
		if err := rows.Scan(&n.ID, &n.ResourceID, &typ, &details, &createdAt, &n.Read); err != nil {
			return nil, fmt.Errorf("failed to scan inbox row: %w", err)
		}
		n.Type = models.NotificationType(typ)
		n.CreatedAt = createdAt
		if err := json.Unmarshal([]byte(details), &n.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inbox rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) MarkRead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE inbox SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) HasUnread(ctx context.Context, resourceID string, t models.NotificationType) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM inbox WHERE resource_id = ? AND type = ? AND read = 0 LIMIT 1
	`, resourceID, string(t)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query unread: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) DeleteUnread(ctx context.Context, resourceID string, t models.NotificationType) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM inbox WHERE resource_id = ? AND type = ? AND read = 0
	`, resourceID, string(t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete unread: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count inbox: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM inbox WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune inbox by age: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *SQLiteRepository) PruneToCount(ctx context.Context, max int) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM inbox WHERE id NOT IN (
			SELECT id FROM inbox ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, max)
	if err != nil {
		return 0, fmt.Errorf("failed to prune inbox by count: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
