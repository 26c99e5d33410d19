// Package provider talks GraphQL to the code hosting providers. Each
// provider implements the same capability interface; callers pick one by
// name and never see transport details.
package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
)

// Review is one review on a pull request.
type Review struct {
	Author      string
	State       string
	SubmittedAt time.Time
}

// Comment is one discussion comment on a pull request.
type Comment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// Check is one CI check result.
type Check struct {
	Name    string
	Passing bool
}

// Provider is the capability surface the polling pipeline needs.
type Provider interface {
	FetchDetails(ctx context.Context, id string) (*models.PullRequest, error)
	FetchReviews(ctx context.Context, id string) ([]Review, error)
	FetchComments(ctx context.Context, id string) ([]Comment, error)
	FetchChecks(ctx context.Context, id string) ([]Check, error)
}

// resourceRef is the parsed form of a resource id, "owner/repo#123".
type resourceRef struct {
	Owner  string
	Repo   string
	Number int
}

func parseRef(id string) (resourceRef, error) {
	var ref resourceRef
	path, num, ok := strings.Cut(id, "#")
	if !ok {
		return ref, fmt.Errorf("malformed resource id %q", id)
	}
	owner, repo, ok := strings.Cut(path, "/")
	if !ok || owner == "" || repo == "" {
		return ref, fmt.Errorf("malformed resource id %q", id)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return ref, fmt.Errorf("malformed resource id %q", id)
	}
	ref.Owner, ref.Repo, ref.Number = owner, repo, n
	return ref, nil
}
