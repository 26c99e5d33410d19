package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/logging"
)

const githubEndpoint = "https://api.github.com/graphql"

// GitHub reads pull request state over the GitHub GraphQL API.
type GitHub struct {
	gql *graphqlClient
}

func NewGitHub(token func() string, log logging.Logger) *GitHub {
	return &GitHub{gql: newGraphQLClient(githubEndpoint, token, log)}
}

// newGitHubWithEndpoint points the client at a test server.
func newGitHubWithEndpoint(endpoint string, token func() string, log logging.Logger) *GitHub {
	return &GitHub{gql: newGraphQLClient(endpoint, token, log)}
}

const githubDetailsQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    pullRequest(number: $number) {
      title
      state
      isDraft
      merged
      updatedAt
      mergeStateStatus
      commits { totalCount }
      comments { totalCount }
      approved: reviews(states: [APPROVED]) { totalCount }
      changesRequested: reviews(states: [CHANGES_REQUESTED]) { totalCount }
      statusCheckRollup: commits(last: 1) {
        nodes { commit { statusCheckRollup { state } } }
      }
    }
  }
}`

type githubPullRequest struct {
	Repository struct {
		PullRequest struct {
			Title            string    `json:"title"`
			State            string    `json:"state"`
			IsDraft          bool      `json:"isDraft"`
			Merged           bool      `json:"merged"`
			UpdatedAt        time.Time `json:"updatedAt"`
			MergeStateStatus string    `json:"mergeStateStatus"`
			Commits          struct {
				TotalCount int `json:"totalCount"`
			} `json:"commits"`
			Comments struct {
				TotalCount int `json:"totalCount"`
			} `json:"comments"`
			Approved struct {
				TotalCount int `json:"totalCount"`
			} `json:"approved"`
			ChangesRequested struct {
				TotalCount int `json:"totalCount"`
			} `json:"changesRequested"`
			StatusCheckRollup struct {
				Nodes []struct {
					Commit struct {
						StatusCheckRollup *struct {
							State string `json:"state"`
						} `json:"statusCheckRollup"`
					} `json:"commit"`
				} `json:"nodes"`
			} `json:"statusCheckRollup"`
		} `json:"pullRequest"`
	} `json:"repository"`
}

func (g *GitHub) FetchDetails(ctx context.Context, id string) (*models.PullRequest, error) {
	ref, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	var data githubPullRequest
	err = g.gql.Query(ctx, githubDetailsQuery, map[string]any{
		"owner": ref.Owner, "repo": ref.Repo, "number": ref.Number,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("github details for %s: %w", id, err)
	}

	pr := data.Repository.PullRequest
	out := &models.PullRequest{
		ID:      id,
		Title:   pr.Title,
		State:   pr.State,
		IsDraft: pr.IsDraft,
		Snapshot: models.Snapshot{
			CommitCount:           pr.Commits.TotalCount,
			CommentCount:          pr.Comments.TotalCount,
			ApprovedCount:         pr.Approved.TotalCount,
			ChangesRequestedCount: pr.ChangesRequested.TotalCount,
			MergeStatus:           normalizeMergeStatus(pr.MergeStateStatus),
			IsMerged:              pr.Merged,
			UpdatedAt:             pr.UpdatedAt,
		},
	}

	// mergeStateStatus can be absent from list-shaped queries; the rollup is
	// the fallback readiness signal then.
	for _, node := range pr.StatusCheckRollup.Nodes {
		if node.Commit.StatusCheckRollup != nil {
			passing := node.Commit.StatusCheckRollup.State == "SUCCESS"
			out.ChecksPassing = &passing
		}
	}
	return out, nil
}

func normalizeMergeStatus(s string) string {
	switch s {
	case models.MergeStatusClean, models.MergeStatusBlocked, models.MergeStatusBehind,
		models.MergeStatusDirty, models.MergeStatusUnstable:
		return s
	case "HAS_HOOKS", "DRAFT":
		return models.MergeStatusBlocked
	default:
		return models.MergeStatusUnknown
	}
}

const githubReviewsQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    pullRequest(number: $number) {
      reviews(last: 50) {
        nodes { author { login } state submittedAt }
      }
    }
  }
}`

func (g *GitHub) FetchReviews(ctx context.Context, id string) ([]Review, error) {
	ref, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	var data struct {
		Repository struct {
			PullRequest struct {
				Reviews struct {
					Nodes []struct {
						Author struct {
							Login string `json:"login"`
						} `json:"author"`
						State       string    `json:"state"`
						SubmittedAt time.Time `json:"submittedAt"`
					} `json:"nodes"`
				} `json:"reviews"`
			} `json:"pullRequest"`
		} `json:"repository"`
	}
	err = g.gql.Query(ctx, githubReviewsQuery, map[string]any{
		"owner": ref.Owner, "repo": ref.Repo, "number": ref.Number,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("github reviews for %s: %w", id, err)
	}

	nodes := data.Repository.PullRequest.Reviews.Nodes
	reviews := make([]Review, 0, len(nodes))
	for _, n := range nodes {
		reviews = append(reviews, Review{Author: n.Author.Login, State: n.State, SubmittedAt: n.SubmittedAt})
	}
	return reviews, nil
}

const githubCommentsQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    pullRequest(number: $number) {
      comments(last: 50) {
        nodes { author { login } body createdAt }
      }
    }
  }
}`

func (g *GitHub) FetchComments(ctx context.Context, id string) ([]Comment, error) {
	ref, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	var data struct {
		Repository struct {
			PullRequest struct {
				Comments struct {
					Nodes []struct {
						Author struct {
							Login string `json:"login"`
						} `json:"author"`
						Body      string    `json:"body"`
						CreatedAt time.Time `json:"createdAt"`
					} `json:"nodes"`
				} `json:"comments"`
			} `json:"pullRequest"`
		} `json:"repository"`
	}
	err = g.gql.Query(ctx, githubCommentsQuery, map[string]any{
		"owner": ref.Owner, "repo": ref.Repo, "number": ref.Number,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("github comments for %s: %w", id, err)
	}

	nodes := data.Repository.PullRequest.Comments.Nodes
	comments := make([]Comment, 0, len(nodes))
	for _, n := range nodes {
		comments = append(comments, Comment{Author: n.Author.Login, Body: n.Body, CreatedAt: n.CreatedAt})
	}
	return comments, nil
}

const githubChecksQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    pullRequest(number: $number) {
      commits(last: 1) {
        nodes {
          commit {
            statusCheckRollup {
              contexts(last: 50) {
                nodes {
                  ... on CheckRun { name conclusion }
                  ... on StatusContext { context state }
                }
              }
            }
          }
        }
      }
    }
  }
}`

func (g *GitHub) FetchChecks(ctx context.Context, id string) ([]Check, error) {
	ref, err := parseRef(id)
	if err != nil {
		return nil, err
	}

	var data struct {
		Repository struct {
			PullRequest struct {
				Commits struct {
					Nodes []struct {
						Commit struct {
							StatusCheckRollup *struct {
								Contexts struct {
									Nodes []struct {
										Name       string `json:"name"`
										Conclusion string `json:"conclusion"`
										Context    string `json:"context"`
										State      string `json:"state"`
									} `json:"nodes"`
								} `json:"contexts"`
							} `json:"statusCheckRollup"`
						} `json:"commit"`
					} `json:"nodes"`
				} `json:"commits"`
			} `json:"pullRequest"`
		} `json:"repository"`
	}
	err = g.gql.Query(ctx, githubChecksQuery, map[string]any{
		"owner": ref.Owner, "repo": ref.Repo, "number": ref.Number,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("github checks for %s: %w", id, err)
	}

	var checks []Check
	for _, commit := range data.Repository.PullRequest.Commits.Nodes {
		rollup := commit.Commit.StatusCheckRollup
		if rollup == nil {
			continue
		}
		for _, n := range rollup.Contexts.Nodes {
			switch {
			case n.Name != "":
				checks = append(checks, Check{Name: n.Name, Passing: n.Conclusion == "SUCCESS"})
			case n.Context != "":
				checks = append(checks, Check{Name: n.Context, Passing: n.State == "SUCCESS"})
			}
		}
	}
	return checks, nil
}
