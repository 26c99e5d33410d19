package cli

import (
	"context"
	"fmt"

	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/client/service"
)

// parseTarget splits "provider resource" arguments, defaulting the provider
// to github when only a resource id is given.
func parseTarget(args []string) (provider, id string, ok bool) {
	switch len(args) {
	case 1:
		return "github", args[0], true
	case 2:
		return args[0], args[1], true
	default:
		return "", "", false
	}
}

func (a *App) follow(ctx context.Context, args []string) {
	provider, id, ok := parseTarget(args)
	if !ok {
		fmt.Println("Usage: follow [provider] <owner/repo#number>")
		return
	}
	res, err := a.core.Follow.Follow(ctx, provider, id, models.NotificationPrefs{})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Following %s: %s\n", res.ID, res.Title)
}

func (a *App) unfollow(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: unfollow <owner/repo#number>")
		return
	}
	if err := a.core.Follow.Unfollow(ctx, args[0]); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Unfollowed", args[0])
}

func (a *App) pin(ctx context.Context, args []string) {
	provider, id, ok := parseTarget(args)
	if !ok {
		fmt.Println("Usage: pin [provider] <owner/repo#number>")
		return
	}
	res, err := a.core.Pinned.Follow(ctx, provider, id, models.NotificationPrefs{})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Pinned %s: %s\n", res.ID, res.Title)
}

func (a *App) list(ctx context.Context) {
	printList := func(label string, svc *service.FollowService) {
		items, err := svc.List(ctx)
		if err != nil {
			fmt.Println("Error:", err)
			return
		}
		if len(items) == 0 {
			return
		}
		fmt.Println(label + ":")
		for _, r := range items {
			fmt.Printf("  %-30s %-40s %s\n", r.ID, r.Title, r.Snapshot.MergeStatus)
		}
	}
	printList("Followed", a.core.Follow)
	printList("Pinned", a.core.Pinned)
}

func (a *App) pollNow(ctx context.Context) {
	items, err := a.core.Follow.Items(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	var failed int
	for _, item := range items {
		if err := a.core.Follow.ProcessPoll(ctx, item); err != nil {
			failed++
		}
	}
	fmt.Printf("Polled %d resources (%d failed)\n", len(items), failed)
}
