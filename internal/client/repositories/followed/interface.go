// Package followed persists tracked pull requests. The followed and pinned
// lists are disjoint tables behind the same repository type, so their pollers
// can run concurrently without sharing state.
package followed

import (
	"context"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
)

type Repository interface {
	// Insert adds a resource. Returns common.ErrAlreadyFollowing when the
	// id is already present: at most one row per resource id.
	Insert(ctx context.Context, r *models.FollowedResource) error

	// Get returns the resource or common.ErrNotFound.
	Get(ctx context.Context, id string) (*models.FollowedResource, error)

	// List returns all resources ordered oldest-followed first.
	List(ctx context.Context) ([]models.FollowedResource, error)

	// UpdateSnapshot replaces the stored last-observed snapshot.
	UpdateSnapshot(ctx context.Context, id string, snap models.Snapshot) error

	// UpdatePrefs replaces the per-resource notification preferences.
	UpdatePrefs(ctx context.Context, id string, prefs models.NotificationPrefs) error

	Delete(ctx context.Context, id string) error

	Count(ctx context.Context) (int, error)

	// EvictOldest deletes oldest-by-follow-date rows until at most keep
	// remain. Returns the number of rows deleted.
	EvictOldest(ctx context.Context, keep int) (int, error)

	// DeleteOlderThan drops resources followed before cutoff (retention).
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
