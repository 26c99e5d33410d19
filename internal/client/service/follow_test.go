package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulldeck/pulldeck/internal/client/changes"
	"github.com/pulldeck/pulldeck/internal/client/inbox"
	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/client/repositories/followed"
	inboxrepo "github.com/pulldeck/pulldeck/internal/client/repositories/inbox"
	"github.com/pulldeck/pulldeck/internal/common"
	"github.com/pulldeck/pulldeck/internal/logging"

	_ "modernc.org/sqlite"
)

type fakeFetcher struct {
	prs map[string]*models.PullRequest
	err error
}

func (f *fakeFetcher) FetchDetails(ctx context.Context, id string) (*models.PullRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	pr, ok := f.prs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return pr, nil
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  commit_count INTEGER NOT NULL DEFAULT 0,
  comment_count INTEGER NOT NULL DEFAULT 0,
  approved_count INTEGER NOT NULL DEFAULT 0,
  changes_requested_count INTEGER NOT NULL DEFAULT 0,
  merge_status TEXT NOT NULL DEFAULT 'UNKNOWN',
  is_merged INTEGER NOT NULL DEFAULT 0,
  updated_at TIMESTAMP NOT NULL,
  prefs TEXT NOT NULL DEFAULT '{}',
  followed_at TIMESTAMP NOT NULL
);`, followed.TableFollowed))
	require.NoError(t, err)

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

func openPR(id string, snap models.Snapshot) *models.PullRequest {
	return &models.PullRequest{ID: id, Title: "title " + id, State: models.StateOpen, Snapshot: snap}
}

func setupService(t *testing.T, fetcher *fakeFetcher) (*FollowService, *inbox.Service, followed.Repository) {
	t.Helper()
	db := setupDB(t)
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo := followed.NewFollowedRepository(db)
	ib := inbox.NewService(inboxrepo.NewSQLiteRepository(db), log, 0, 0)
	svc := NewFollowService(repo, ib, changes.NewDetector(true),
		map[string]Fetcher{"github": fetcher}, log, 3, DefaultRetention)
	return svc, ib, repo
}

func TestFollow_SeedsSnapshotFromFetch(t *testing.T) {
	ctx := context.Background()
	snap := models.Snapshot{CommitCount: 7, CommentCount: 2, MergeStatus: models.MergeStatusBlocked}
	fetcher := &fakeFetcher{prs: map[string]*models.PullRequest{"octo/repo#1": openPR("octo/repo#1", snap)}}
	svc, _, repo := setupService(t, fetcher)

	res, err := svc.Follow(ctx, "github", "octo/repo#1", models.NotificationPrefs{})
	require.NoError(t, err)
	assert.Equal(t, snap, res.Snapshot)
	assert.Equal(t, "title octo/repo#1", res.Title)

	stored, err := repo.Get(ctx, "octo/repo#1")
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Snapshot.CommitCount)
	assert.Equal(t, 2, stored.Snapshot.CommentCount)
	assert.Equal(t, models.MergeStatusBlocked, stored.Snapshot.MergeStatus)

	// Re-following is a synchronous validation error, not a broadcast.
	_, err = svc.Follow(ctx, "github", "octo/repo#1", models.NotificationPrefs{})
	require.ErrorIs(t, err, common.ErrAlreadyFollowing)
}

func TestFollow_CapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{prs: map[string]*models.PullRequest{}}
	svc, _, repo := setupService(t, fetcher)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("octo/repo#%d", i)
		fetcher.prs[id] = openPR(id, models.Snapshot{})
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := svc.Follow(ctx, "github", id, models.NotificationPrefs{})
		require.NoError(t, err)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = repo.Get(ctx, "octo/repo#0")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = repo.Get(ctx, "octo/repo#4")
	assert.NoError(t, err)
}

func TestFollow_UnknownProvider(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t, &fakeFetcher{})

	_, err := svc.Follow(ctx, "bitbucket", "x/y#1", models.NotificationPrefs{})
	require.Error(t, err)
}

func TestUnfollow(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{prs: map[string]*models.PullRequest{"octo/repo#1": openPR("octo/repo#1", models.Snapshot{})}}
	svc, _, repo := setupService(t, fetcher)

	_, err := svc.Follow(ctx, "github", "octo/repo#1", models.NotificationPrefs{})
	require.NoError(t, err)

	require.NoError(t, svc.Unfollow(ctx, "octo/repo#1"))
	_, err = repo.Get(ctx, "octo/repo#1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.ErrorIs(t, svc.Unfollow(ctx, "octo/repo#1"), common.ErrNotFollowing)
}

func TestProcessPoll_EmitsAndAdvancesSnapshot(t *testing.T) {
	ctx := context.Background()
	id := "octo/repo#1"
	prev := models.Snapshot{CommitCount: 2, CommentCount: 5, ChangesRequestedCount: 1, MergeStatus: models.MergeStatusBlocked}
	fetcher := &fakeFetcher{prs: map[string]*models.PullRequest{id: openPR(id, prev)}}
	svc, ib, repo := setupService(t, fetcher)

	_, err := svc.Follow(ctx, "github", id, models.NotificationPrefs{})
	require.NoError(t, err)

	cur := models.Snapshot{CommitCount: 3, CommentCount: 5, ApprovedCount: 1, ChangesRequestedCount: 1, MergeStatus: models.MergeStatusClean}
	fetcher.prs[id] = openPR(id, cur)

	items, err := svc.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, svc.ProcessPoll(ctx, items[0]))

	notifs, err := ib.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, notifs, 3)

	stored, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Snapshot.CommitCount)
	assert.Equal(t, 1, stored.Snapshot.ApprovedCount)
	assert.Equal(t, models.MergeStatusClean, stored.Snapshot.MergeStatus)

	// Same upstream state again: no new notifications, ready edge held.
	items, err = svc.Items(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.ProcessPoll(ctx, items[0]))
	notifs, err = ib.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, notifs, 3)
}

func TestProcessPoll_ReverseEdgeClearsPending(t *testing.T) {
	ctx := context.Background()
	id := "octo/repo#1"
	fetcher := &fakeFetcher{prs: map[string]*models.PullRequest{id: openPR(id, models.Snapshot{MergeStatus: models.MergeStatusDirty})}}
	svc, ib, _ := setupService(t, fetcher)

	_, err := svc.Follow(ctx, "github", id, models.NotificationPrefs{})
	require.NoError(t, err)

	fetcher.prs[id] = openPR(id, models.Snapshot{MergeStatus: models.MergeStatusClean})
	items, err := svc.Items(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.ProcessPoll(ctx, items[0]))

	has, err := ib.HasUnread(ctx, id, models.NotificationReadyToMerge)
	require.NoError(t, err)
	require.True(t, has)

	fetcher.prs[id] = openPR(id, models.Snapshot{MergeStatus: models.MergeStatusDirty})
	items, err = svc.Items(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.ProcessPoll(ctx, items[0]))

	has, err = ib.HasUnread(ctx, id, models.NotificationReadyToMerge)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestProcessPoll_TerminalUnfollows(t *testing.T) {
	ctx := context.Background()
	id := "octo/repo#1"
	fetcher := &fakeFetcher{prs: map[string]*models.PullRequest{id: openPR(id, models.Snapshot{})}}
	svc, ib, repo := setupService(t, fetcher)

	_, err := svc.Follow(ctx, "github", id, models.NotificationPrefs{})
	require.NoError(t, err)

	merged := openPR(id, models.Snapshot{IsMerged: true})
	merged.State = models.StateMerged
	fetcher.prs[id] = merged

	items, err := svc.Items(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.ProcessPoll(ctx, items[0]))

	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)

	notifs, err := ib.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, models.NotificationMerged, notifs[0].Type)
}
