package models

import "time"

// NotificationType enumerates the change kinds a user can be told about.
type NotificationType string

const (
	NotificationNewCommits       NotificationType = "new_commits"
	NotificationNewComments      NotificationType = "new_comments"
	NotificationNewApprovals     NotificationType = "new_approvals"
	NotificationChangesRequested NotificationType = "changes_requested"
	NotificationMergeStatus      NotificationType = "merge_status"
	NotificationReadyToMerge     NotificationType = "ready_to_merge"
	NotificationMerged           NotificationType = "merged"
)

// EdgeTriggered reports whether t is an edge-triggered type: at most one
// unread notification of that type may exist per resource, and a second one
// requires the first to have been cleared by a reverse transition.
func (t NotificationType) EdgeTriggered() bool {
	return t == NotificationReadyToMerge
}

// ChangeDetails carries the structured payload of a notification.
type ChangeDetails struct {
	Count  int    `json:"count,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Signal string `json:"signal,omitempty"`
}

// Notification is one entry in the inbox. Never mutated after creation except
// for the Read flag.
type Notification struct {
	ID         string           `json:"id"`
	ResourceID string           `json:"resource_id"`
	Type       NotificationType `json:"type"`
	Details    ChangeDetails    `json:"details"`
	CreatedAt  time.Time        `json:"created_at"`
	Read       bool             `json:"read"`
}
