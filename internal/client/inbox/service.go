// Package inbox applies the notification retention policy on top of the
// persistence layer: count and age caps with oldest-first pruning, and the
// one-unread-per-resource guarantee for edge-triggered types.
package inbox

import (
	"context"
	"fmt"
	"time"

	inboxrepo "github.com/pulldeck/pulldeck/internal/client/repositories/inbox"
	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/logging"
)

const (
	DefaultMaxCount = 200
	DefaultMaxAge   = 30 * 24 * time.Hour
)

type Service struct {
	repo     inboxrepo.Repository
	log      logging.Logger
	maxCount int
	maxAge   time.Duration
	now      func() time.Time
}

func NewService(repo inboxrepo.Repository, log logging.Logger, maxCount int, maxAge time.Duration) *Service {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{repo: repo, log: log, maxCount: maxCount, maxAge: maxAge, now: time.Now}
}

// Add appends notifications and enforces the caps. Edge-triggered types are
// deduplicated against an existing unread entry for the same resource; the
// duplicate is dropped silently since the user already has a pending signal.
func (s *Service) Add(ctx context.Context, notifs ...models.Notification) error {
	for i := range notifs {
		n := &notifs[i]
		if n.Type.EdgeTriggered() {
			exists, err := s.repo.HasUnread(ctx, n.ResourceID, n.Type)
			if err != nil {
				return fmt.Errorf("inbox dedup check: %w", err)
			}
			if exists {
				s.log.Debug(ctx, "dropping duplicate edge notification",
					"resource_id", n.ResourceID, "type", string(n.Type))
				continue
			}
		}
		if err := s.repo.Insert(ctx, n); err != nil {
			return fmt.Errorf("inbox insert: %w", err)
		}
	}
	return s.prune(ctx)
}

// List returns up to limit notifications, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]models.Notification, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkRead(ctx, id)
}

// HasUnread is the edge state the change detector evaluates against.
func (s *Service) HasUnread(ctx context.Context, resourceID string, t models.NotificationType) (bool, error) {
	return s.repo.HasUnread(ctx, resourceID, t)
}

// ClearUnread drops pending unread notifications of the given type for a
// resource, the reverse-transition cleanup for ready-to-merge.
func (s *Service) ClearUnread(ctx context.Context, resourceID string, t models.NotificationType) error {
	n, err := s.repo.DeleteUnread(ctx, resourceID, t)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Debug(ctx, "cleared pending notifications",
			"resource_id", resourceID, "type", string(t), "count", n)
	}
	return nil
}

func (s *Service) prune(ctx context.Context) error {
	if _, err := s.repo.PruneOlderThan(ctx, s.now().Add(-s.maxAge)); err != nil {
		return fmt.Errorf("inbox age prune: %w", err)
	}
	if _, err := s.repo.PruneToCount(ctx, s.maxCount); err != nil {
		return fmt.Errorf("inbox count prune: %w", err)
	}
	return nil
}
