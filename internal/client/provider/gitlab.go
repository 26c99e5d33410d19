package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/logging"
)

const gitlabEndpoint = "https://gitlab.com/api/graphql"

// GitLab reads merge request state over the GitLab GraphQL API. Resource ids
// use the same "group/project#iid" shape as GitHub ones.
type GitLab struct {
	gql *graphqlClient
}

func NewGitLab(token func() string, log logging.Logger) *GitLab {
	return &GitLab{gql: newGraphQLClient(gitlabEndpoint, token, log)}
}

func newGitLabWithEndpoint(endpoint string, token func() string, log logging.Logger) *GitLab {
	return &GitLab{gql: newGraphQLClient(endpoint, token, log)}
}

const gitlabDetailsQuery = `
query($fullPath: ID!, $iid: String!) {
  project(fullPath: $fullPath) {
    mergeRequest(iid: $iid) {
      title
      state
      draft
      updatedAt
      detailedMergeStatus
      commitCount
      userNotesCount
      approvedBy { nodes { username } }
      headPipeline { status }
    }
  }
}`

type gitlabMergeRequest struct {
	Project struct {
		MergeRequest struct {
			Title               string    `json:"title"`
			State               string    `json:"state"`
			Draft               bool      `json:"draft"`
			UpdatedAt           time.Time `json:"updatedAt"`
			DetailedMergeStatus string    `json:"detailedMergeStatus"`
			CommitCount         int       `json:"commitCount"`
			UserNotesCount      int       `json:"userNotesCount"`
			ApprovedBy          struct {
				Nodes []struct {
					Username string `json:"username"`
				} `json:"nodes"`
			} `json:"approvedBy"`
			HeadPipeline *struct {
				Status string `json:"status"`
			} `json:"headPipeline"`
		} `json:"mergeRequest"`
	} `json:"project"`
}

func (g *GitLab) FetchDetails(ctx context.Context, id string) (*models.PullRequest, error) {
	ref, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	var data gitlabMergeRequest
	err = g.gql.Query(ctx, gitlabDetailsQuery, map[string]any{
		"fullPath": ref.Owner + "/" + ref.Repo, "iid": fmt.Sprint(ref.Number),
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("gitlab details for %s: %w", id, err)
	}

	mr := data.Project.MergeRequest
	out := &models.PullRequest{
		ID:      id,
		Title:   mr.Title,
		State:   normalizeGitLabState(mr.State),
		IsDraft: mr.Draft,
		Snapshot: models.Snapshot{
			CommitCount:   mr.CommitCount,
			CommentCount:  mr.UserNotesCount,
			ApprovedCount: len(mr.ApprovedBy.Nodes),
			MergeStatus:   normalizeGitLabMergeStatus(mr.DetailedMergeStatus),
			IsMerged:      mr.State == "merged",
			UpdatedAt:     mr.UpdatedAt,
		},
	}
	if mr.HeadPipeline != nil {
		passing := strings.EqualFold(mr.HeadPipeline.Status, "success")
		out.ChecksPassing = &passing
	}
	return out, nil
}

func normalizeGitLabState(s string) string {
	switch s {
	case "opened":
		return models.StateOpen
	case "merged":
		return models.StateMerged
	case "closed", "locked":
		return models.StateClosed
	default:
		return strings.ToUpper(s)
	}
}

func normalizeGitLabMergeStatus(s string) string {
	switch s {
	case "mergeable":
		return models.MergeStatusClean
	case "conflict", "broken_status":
		return models.MergeStatusDirty
	case "need_rebase":
		return models.MergeStatusBehind
	case "ci_still_running", "ci_must_pass":
		return models.MergeStatusUnstable
	case "draft", "blocked_status", "discussions_not_resolved",
		"not_approved", "requested_changes":
		return models.MergeStatusBlocked
	case "":
		return models.MergeStatusUnknown
	default:
		return models.MergeStatusBlocked
	}
}

const gitlabReviewsQuery = `
query($fullPath: ID!, $iid: String!) {
  project(fullPath: $fullPath) {
    mergeRequest(iid: $iid) {
      approvedBy { nodes { username } }
    }
  }
}`

func (g *GitLab) FetchReviews(ctx context.Context, id string) ([]Review, error) {
	ref, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	var data struct {
		Project struct {
			MergeRequest struct {
				ApprovedBy struct {
					Nodes []struct {
						Username string `json:"username"`
					} `json:"nodes"`
				} `json:"approvedBy"`
			} `json:"mergeRequest"`
		} `json:"project"`
	}
	err = g.gql.Query(ctx, gitlabReviewsQuery, map[string]any{
		"fullPath": ref.Owner + "/" + ref.Repo, "iid": fmt.Sprint(ref.Number),
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("gitlab reviews for %s: %w", id, err)
	}

	nodes := data.Project.MergeRequest.ApprovedBy.Nodes
	reviews := make([]Review, 0, len(nodes))
	for _, n := range nodes {
		reviews = append(reviews, Review{Author: n.Username, State: "APPROVED"})
	}
	return reviews, nil
}

const gitlabCommentsQuery = `
query($fullPath: ID!, $iid: String!) {
  project(fullPath: $fullPath) {
    mergeRequest(iid: $iid) {
      notes(last: 50) {
        nodes { author { username } body createdAt system }
      }
    }
  }
}`

func (g *GitLab) FetchComments(ctx context.Context, id string) ([]Comment, error) {
	ref, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	var data struct {
		Project struct {
			MergeRequest struct {
				Notes struct {
					Nodes []struct {
						Author struct {
							Username string `json:"username"`
						} `json:"author"`
						Body      string    `json:"body"`
						CreatedAt time.Time `json:"createdAt"`
						System    bool      `json:"system"`
					} `json:"nodes"`
				} `json:"notes"`
			} `json:"mergeRequest"`
		} `json:"project"`
	}
	err = g.gql.Query(ctx, gitlabCommentsQuery, map[string]any{
		"fullPath": ref.Owner + "/" + ref.Repo, "iid": fmt.Sprint(ref.Number),
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("gitlab comments for %s: %w", id, err)
	}

	var comments []Comment
	for _, n := range data.Project.MergeRequest.Notes.Nodes {
		if n.System {
			continue
		}
		comments = append(comments, Comment{Author: n.Author.Username, Body: n.Body, CreatedAt: n.CreatedAt})
	}
	return comments, nil
}

const gitlabChecksQuery = `
query($fullPath: ID!, $iid: String!) {
  project(fullPath: $fullPath) {
    mergeRequest(iid: $iid) {
      headPipeline {
        jobs { nodes { name status } }
      }
    }
  }
}`

func (g *GitLab) FetchChecks(ctx context.Context, id string) ([]Check, error) {
	ref, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	var data struct {
		Project struct {
			MergeRequest struct {
				HeadPipeline *struct {
					Jobs struct {
						Nodes []struct {
							Name   string `json:"name"`
							Status string `json:"status"`
						} `json:"nodes"`
					} `json:"jobs"`
				} `json:"headPipeline"`
			} `json:"mergeRequest"`
		} `json:"project"`
	}
	err = g.gql.Query(ctx, gitlabChecksQuery, map[string]any{
		"fullPath": ref.Owner + "/" + ref.Repo, "iid": fmt.Sprint(ref.Number),
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("gitlab checks for %s: %w", id, err)
	}

	pipeline := data.Project.MergeRequest.HeadPipeline
	if pipeline == nil {
		return nil, nil
	}
	checks := make([]Check, 0, len(pipeline.Jobs.Nodes))
	for _, n := range pipeline.Jobs.Nodes {
		checks = append(checks, Check{Name: n.Name, Passing: strings.EqualFold(n.Status, "success")})
	}
	return checks, nil
}
