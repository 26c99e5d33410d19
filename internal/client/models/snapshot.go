// Package models defines the client-side domain types: pull request
// snapshots, followed resources, subscription entitlements, and inbox
// notifications.
package models

import "time"

// Merge status values as reported by the hosting provider.
const (
	MergeStatusClean    = "CLEAN"
	MergeStatusBlocked  = "BLOCKED"
	MergeStatusBehind   = "BEHIND"
	MergeStatusDirty    = "DIRTY"
	MergeStatusUnstable = "UNSTABLE"
	MergeStatusUnknown  = "UNKNOWN"
)

// Pull request states.
const (
	StateOpen   = "OPEN"
	StateMerged = "MERGED"
	StateClosed = "CLOSED"
)

// Snapshot is the last observed aggregate state of a pull request. Deltas on
// the next poll are always computed against the last observed state, not the
// last notified one.
type Snapshot struct {
	CommitCount           int       `json:"commit_count"`
	CommentCount          int       `json:"comment_count"`
	ApprovedCount         int       `json:"approved_count"`
	ChangesRequestedCount int       `json:"changes_requested_count"`
	MergeStatus           string    `json:"merge_status"`
	IsMerged              bool      `json:"is_merged"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Equal compares snapshots semantically; time.Time comparison by == is
// unreliable after a database roundtrip.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.CommitCount == o.CommitCount &&
		s.CommentCount == o.CommentCount &&
		s.ApprovedCount == o.ApprovedCount &&
		s.ChangesRequestedCount == o.ChangesRequestedCount &&
		s.MergeStatus == o.MergeStatus &&
		s.IsMerged == o.IsMerged &&
		s.UpdatedAt.Equal(o.UpdatedAt)
}

// PullRequest is a freshly fetched representation of a tracked pull request.
// ChecksPassing is nil when the provider query did not include check results;
// readiness then falls back to MergeStatus alone.
type PullRequest struct {
	ID            string
	Title         string
	State         string
	IsDraft       bool
	ChecksPassing *bool
	Snapshot      Snapshot
}

// Open reports whether the pull request is still open.
func (pr *PullRequest) Open() bool {
	return pr.State == StateOpen
}
