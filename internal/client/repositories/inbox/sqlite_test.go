package inbox

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/common"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS inbox (
  id TEXT PRIMARY KEY,
  resource_id TEXT NOT NULL,
  type TEXT NOT NULL,
  details TEXT NOT NULL DEFAULT '{}',
  created_at TIMESTAMP NOT NULL,
  read INTEGER NOT NULL DEFAULT 0
);`)
	require.NoError(t, err)
	return db
}

func notification(resourceID string, t models.NotificationType, createdAt time.Time) *models.Notification {
	return &models.Notification{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Type:       t,
		Details:    models.ChangeDetails{Count: 1},
		CreatedAt:  createdAt,
	}
}

func TestSQLiteRepository_InsertList(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Insert(ctx, notification("pr-1", models.NotificationNewCommits, base)))
	require.NoError(t, repo.Insert(ctx, notification("pr-1", models.NotificationNewComments, base.Add(time.Minute))))

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// newest first
	require.Equal(t, models.NotificationNewComments, list[0].Type)
	require.Equal(t, 1, list[0].Details.Count)

	list, err = repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSQLiteRepository_MarkReadAndUnread(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))

	n := notification("pr-1", models.NotificationReadyToMerge, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, n))

	has, err := repo.HasUnread(ctx, "pr-1", models.NotificationReadyToMerge)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, repo.MarkRead(ctx, n.ID))

	has, err = repo.HasUnread(ctx, "pr-1", models.NotificationReadyToMerge)
	require.NoError(t, err)
	require.False(t, has)

	require.ErrorIs(t, repo.MarkRead(ctx, "absent"), common.ErrNotFound)
}

func TestSQLiteRepository_DeleteUnread(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))

	now := time.Now().UTC()
	read := notification("pr-1", models.NotificationReadyToMerge, now)
	require.NoError(t, repo.Insert(ctx, read))
	require.NoError(t, repo.MarkRead(ctx, read.ID))
	require.NoError(t, repo.Insert(ctx, notification("pr-1", models.NotificationReadyToMerge, now)))

	deleted, err := repo.DeleteUnread(ctx, "pr-1", models.NotificationReadyToMerge)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	// the read one survives
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSQLiteRepository_Prune(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx,
			notification("pr-1", models.NotificationNewCommits, base.Add(time.Duration(i)*time.Minute))))
	}

	n, err := repo.PruneOlderThan(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = repo.PruneToCount(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// oldest dropped first
	require.Equal(t, base.Add(4*time.Minute), list[0].CreatedAt.UTC())
}
