package models

import "time"

// NotificationPrefs holds per-change-type opt-in flags for one followed
// resource. A nil field means "unset": the global default applies.
type NotificationPrefs struct {
	NewCommits       *bool `json:"new_commits,omitempty"`
	NewComments      *bool `json:"new_comments,omitempty"`
	NewApprovals     *bool `json:"new_approvals,omitempty"`
	ChangesRequested *bool `json:"changes_requested,omitempty"`
	MergeStatus      *bool `json:"merge_status,omitempty"`
	ReadyToMerge     *bool `json:"ready_to_merge,omitempty"`
	Merged           *bool `json:"merged,omitempty"`
}

// Enabled resolves the flag for the given type, falling back to def when the
// per-resource flag is unset.
func (p NotificationPrefs) Enabled(t NotificationType, def bool) bool {
	var flag *bool
	switch t {
	case NotificationNewCommits:
		flag = p.NewCommits
	case NotificationNewComments:
		flag = p.NewComments
	case NotificationNewApprovals:
		flag = p.NewApprovals
	case NotificationChangesRequested:
		flag = p.ChangesRequested
	case NotificationMergeStatus:
		flag = p.MergeStatus
	case NotificationReadyToMerge:
		flag = p.ReadyToMerge
	case NotificationMerged:
		flag = p.Merged
	}
	if flag == nil {
		return def
	}
	return *flag
}

// FollowedResource is one tracked pull request together with its last
// observed snapshot and notification preferences. Provider names the hosting
// provider ("github", "gitlab") the resource lives on.
type FollowedResource struct {
	ID         string            `json:"id"`
	Provider   string            `json:"provider"`
	Title      string            `json:"title"`
	Snapshot   Snapshot          `json:"snapshot"`
	Prefs      NotificationPrefs `json:"prefs"`
	FollowedAt time.Time         `json:"followed_at"`
}
