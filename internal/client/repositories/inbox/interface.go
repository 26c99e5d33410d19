// Package inbox persists emitted notifications. The store is append-only
// except for the read flag and pruning; dedup for edge-triggered types is
// keyed on (resource id, type).
package inbox

import (
	"context"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
)

type Repository interface {
	Insert(ctx context.Context, n *models.Notification) error

	// List returns up to limit notifications, newest first. limit <= 0
	// means no limit.
	List(ctx context.Context, limit int) ([]models.Notification, error)

	// MarkRead flips the read flag. Returns common.ErrNotFound for an
	// unknown id.
	MarkRead(ctx context.Context, id string) error

	// HasUnread reports whether an unread notification of the given type
	// exists for the resource.
	HasUnread(ctx context.Context, resourceID string, t models.NotificationType) (bool, error)

	// DeleteUnread removes unread notifications of the given type for the
	// resource (the reverse-transition cleanup for edge-triggered types).
	DeleteUnread(ctx context.Context, resourceID string, t models.NotificationType) (int, error)

	Count(ctx context.Context) (int, error)

	// PruneOlderThan drops notifications created before cutoff.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// PruneToCount drops oldest notifications until at most max remain.
	PruneToCount(ctx context.Context, max int) (int, error)
}
