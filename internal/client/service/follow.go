// Package service implements the user-facing operations over the followed
// and pinned stores: follow, unfollow, preference updates, and the per-poll
// processing pipeline that feeds the inbox.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/changes"
	"github.com/pulldeck/pulldeck/internal/client/inbox"
	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/client/repositories/followed"
	"github.com/pulldeck/pulldeck/internal/common"
	"github.com/pulldeck/pulldeck/internal/logging"
)

// Fetcher is the slice of a provider the service needs to observe one pull
// request.
type Fetcher interface {
	FetchDetails(ctx context.Context, id string) (*models.PullRequest, error)
}

const (
	DefaultMaxFollowed = 100
	DefaultRetention   = 90 * 24 * time.Hour
)

// FollowService runs one tracked-resource store. The followed and pinned
// lists each get their own instance over their own repository, so the two
// pollers touch disjoint state.
type FollowService struct {
	repo      followed.Repository
	inbox     *inbox.Service
	detector  *changes.Detector
	fetchers  map[string]Fetcher
	log       logging.Logger
	maxCount  int
	retention time.Duration
	now       func() time.Time
}

func NewFollowService(repo followed.Repository, ib *inbox.Service, detector *changes.Detector,
	fetchers map[string]Fetcher, log logging.Logger, maxCount int, retention time.Duration) *FollowService {
	if maxCount <= 0 {
		maxCount = DefaultMaxFollowed
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &FollowService{
		repo:      repo,
		inbox:     ib,
		detector:  detector,
		fetchers:  fetchers,
		log:       log,
		maxCount:  maxCount,
		retention: retention,
		now:       time.Now,
	}
}

// Follow starts tracking a pull request, seeding the stored snapshot from a
// fresh fetch so the first poll reports no spurious deltas.
func (s *FollowService) Follow(ctx context.Context, provider, id string, prefs models.NotificationPrefs) (*models.FollowedResource, error) {
	fetcher, err := s.fetcher(provider)
	if err != nil {
		return nil, err
	}
	pr, err := fetcher.FetchDetails(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", id, err)
	}
	if !pr.Open() {
		return nil, fmt.Errorf("%s is not open: %w", id, common.ErrInternal)
	}

	res := &models.FollowedResource{
		ID:         id,
		Provider:   provider,
		Title:      pr.Title,
		Snapshot:   pr.Snapshot,
		Prefs:      prefs,
		FollowedAt: s.now(),
	}
	if err := s.repo.Insert(ctx, res); err != nil {
		return nil, err
	}
	if evicted, err := s.repo.EvictOldest(ctx, s.maxCount); err != nil {
		return nil, err
	} else if evicted > 0 {
		s.log.Info(ctx, "evicted oldest followed resources", "count", evicted)
	}
	return res, nil
}

// Unfollow stops tracking a resource and drops its pending notifications.
func (s *FollowService) Unfollow(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFollowing
		}
		return err
	}
	if err := s.inbox.ClearUnread(ctx, id, models.NotificationReadyToMerge); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *FollowService) List(ctx context.Context) ([]models.FollowedResource, error) {
	return s.repo.List(ctx)
}

func (s *FollowService) SetPrefs(ctx context.Context, id string, prefs models.NotificationPrefs) error {
	return s.repo.UpdatePrefs(ctx, id, prefs)
}

// Items returns the resources due for polling, after enforcing retention.
func (s *FollowService) Items(ctx context.Context) ([]models.FollowedResource, error) {
	if n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-s.retention)); err != nil {
		return nil, err
	} else if n > 0 {
		s.log.Info(ctx, "retention dropped stale followed resources", "count", n)
	}
	return s.repo.List(ctx)
}

// ProcessPoll folds one fresh observation of one resource into the stores:
// notifications into the inbox, the advanced snapshot (or the unfollow) into
// the followed store.
func (s *FollowService) ProcessPoll(ctx context.Context, res models.FollowedResource) error {
	fetcher, err := s.fetcher(res.Provider)
	if err != nil {
		return err
	}
	pr, err := fetcher.FetchDetails(ctx, res.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", res.ID, err)
	}

	hasUnreadReady, err := s.inbox.HasUnread(ctx, res.ID, models.NotificationReadyToMerge)
	if err != nil {
		return err
	}

	ev := s.detector.Evaluate(&res, pr, hasUnreadReady)

	if ev.ClearReady {
		if err := s.inbox.ClearUnread(ctx, res.ID, models.NotificationReadyToMerge); err != nil {
			return err
		}
	}
	if len(ev.Notifications) > 0 {
		if err := s.inbox.Add(ctx, ev.Notifications...); err != nil {
			return err
		}
	}

	if ev.Unfollow {
		s.log.Info(ctx, "unfollowing terminal resource", "resource_id", res.ID, "state", pr.State)
		return s.repo.Delete(ctx, res.ID)
	}
	if ev.Snapshot != nil {
		return s.repo.UpdateSnapshot(ctx, res.ID, *ev.Snapshot)
	}
	return nil
}

func (s *FollowService) fetcher(provider string) (Fetcher, error) {
	f, ok := s.fetchers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", provider, common.ErrInternal)
	}
	return f, nil
}
