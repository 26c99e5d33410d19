// Package changes turns a (previous snapshot, fresh fetch) pair into the set
// of inbox notifications the user asked for, plus the store mutations the
// poll implies. The detector itself is stateless; edge state for
// ready-to-merge lives in the inbox (the presence of an unread notification).
package changes

import (
	"time"

	"github.com/google/uuid"

	"github.com/pulldeck/pulldeck/internal/client/models"
)

// Readiness signals. The merge-status field is authoritative; the checks
// fallback exists for list queries that do not carry it, and the two can
// disagree when branch protection requires reviews but not checks. We never
// reconcile them silently, we record which one decided.
const (
	SignalMergeStatus = "merge_status"
	SignalChecksGreen = "checks_green"
)

// Detector computes deltas and notification decisions for one poll of one
// resource.
type Detector struct {
	defaultEnabled bool
	now            func() time.Time
}

func NewDetector(defaultEnabled bool) *Detector {
	return &Detector{defaultEnabled: defaultEnabled, now: time.Now}
}

// Evaluation is what one poll of one resource produced.
type Evaluation struct {
	// Notifications to append to the inbox, already id'd and timestamped.
	Notifications []models.Notification
	// Snapshot, when non-nil, replaces the stored snapshot. Deltas are
	// relative to the last observed state, not the last notified one, so the
	// snapshot advances even when preferences suppressed every notification.
	Snapshot *models.Snapshot
	// ClearReady marks the ready→not-ready reverse edge: the existing unread
	// ready-to-merge notification must be deleted so the next ready edge can
	// fire again.
	ClearReady bool
	// Unfollow marks a terminal merged/closed state; the resource is removed
	// from the followed set unconditionally.
	Unfollow bool
	// Ready and ReadySignal report the readiness determination and which
	// signal produced it, for diagnostics.
	Ready       bool
	ReadySignal string
}

// Ready reports whether pr is ready to merge and which signal decided.
func Ready(pr *models.PullRequest) (bool, string) {
	if !pr.Open() || pr.IsDraft {
		return false, ""
	}
	if pr.Snapshot.MergeStatus == models.MergeStatusClean {
		return true, SignalMergeStatus
	}
	if pr.Snapshot.MergeStatus == "" || pr.Snapshot.MergeStatus == models.MergeStatusUnknown {
		if pr.ChecksPassing != nil && *pr.ChecksPassing {
			return true, SignalChecksGreen
		}
	}
	return false, ""
}

// Evaluate compares the stored snapshot in res against the freshly fetched
// cur. hasUnreadReady is the edge state: whether an unread ready-to-merge
// notification currently exists for the resource.
func (d *Detector) Evaluate(res *models.FollowedResource, cur *models.PullRequest, hasUnreadReady bool) Evaluation {
	prev := res.Snapshot
	snap := cur.Snapshot
	var ev Evaluation

	if !cur.Open() {
		// Terminal: closed PRs are never re-polled.
		ev.Unfollow = true
		if snap.IsMerged && !prev.IsMerged && d.enabled(res, models.NotificationMerged) {
			ev.Notifications = append(ev.Notifications, d.notification(res.ID, models.NotificationMerged, models.ChangeDetails{}))
		}
		return ev
	}

	type counter struct {
		typ        models.NotificationType
		prev, cur  int
	}
	for _, c := range []counter{
		{models.NotificationNewCommits, prev.CommitCount, snap.CommitCount},
		{models.NotificationNewComments, prev.CommentCount, snap.CommentCount},
		{models.NotificationNewApprovals, prev.ApprovedCount, snap.ApprovedCount},
		{models.NotificationChangesRequested, prev.ChangesRequestedCount, snap.ChangesRequestedCount},
	} {
		delta := c.cur - c.prev
		if delta <= 0 {
			// Upstream counts can regress (a comment was deleted); clamp,
			// never emit a negative count.
			continue
		}
		if d.enabled(res, c.typ) {
			ev.Notifications = append(ev.Notifications, d.notification(res.ID, c.typ, models.ChangeDetails{Count: delta}))
		}
	}

	if snap.MergeStatus != prev.MergeStatus && snap.MergeStatus != models.MergeStatusClean {
		// A transition into CLEAN is reported by ready-to-merge below, not
		// here, so one underlying event never produces two notifications.
		if d.enabled(res, models.NotificationMergeStatus) {
			ev.Notifications = append(ev.Notifications, d.notification(res.ID, models.NotificationMergeStatus,
				models.ChangeDetails{From: prev.MergeStatus, To: snap.MergeStatus}))
		}
	}

	ev.Ready, ev.ReadySignal = Ready(cur)
	switch {
	case ev.Ready && !hasUnreadReady:
		if d.enabled(res, models.NotificationReadyToMerge) {
			ev.Notifications = append(ev.Notifications, d.notification(res.ID, models.NotificationReadyToMerge,
				models.ChangeDetails{Signal: ev.ReadySignal}))
		}
	case !ev.Ready && hasUnreadReady:
		ev.ClearReady = true
	}

	if !snap.Equal(prev) {
		ev.Snapshot = &snap
	}
	return ev
}

func (d *Detector) enabled(res *models.FollowedResource, t models.NotificationType) bool {
	return res.Prefs.Enabled(t, d.defaultEnabled)
}

func (d *Detector) notification(resourceID string, t models.NotificationType, details models.ChangeDetails) models.Notification {
	return models.Notification{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Type:       t,
		Details:    details,
		CreatedAt:  d.now(),
	}
}
