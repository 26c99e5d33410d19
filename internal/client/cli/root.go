package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pulldeck/pulldeck/internal/client/session"
)

func (a *App) getStatus() string {
	s := ""
	if a.email != "" {
		s = a.email + " "
	}
	st := a.core.Status()
	switch {
	case st.SyncRequired:
		s += "sync required"
	case st.State == session.StateOK && !st.Online:
		s += "offline"
	default:
		s += string(st.State)
	}
	return fmt.Sprintf("(%s)", strings.TrimSpace(s))
}

func (a *App) Root(ctx context.Context) {

	log.Println("Welcome to pulldeck CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("pd %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Println("Available commands: follow, unfollow, pin, (l)ist, inbox, read, poll, sync, status, logout, exit")
			} else {
				fmt.Println("Available commands: login, exit")
			}

		case "login":
			a.login(ctx)
		case "logout":
			a.logout(ctx)
		case "follow":
			a.follow(ctx, args)
		case "unfollow":
			a.unfollow(ctx, args)
		case "pin":
			a.pin(ctx, args)
		case "list", "l":
			a.list(ctx)
		case "inbox":
			a.showInbox(ctx)
		case "read":
			if len(args) == 0 {
				fmt.Println("Usage: read <notification id>")
				continue
			}
			a.markRead(ctx, args[0])
		case "poll":
			a.pollNow(ctx)
		case "sync":
			a.core.Session.SyncNow(ctx)
			fmt.Println("Sync requested")
		case "status":
			a.showStatus()
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}

}

func (a *App) showStatus() {
	st := a.core.Status()
	fmt.Printf("state: %s\n", st.State)
	fmt.Printf("online: %v\n", st.Online)
	if st.LastSyncAt != nil {
		fmt.Printf("last sync: %s\n", st.LastSyncAt.Format("2006-01-02 15:04:05"))
	}
	if st.GracePeriodEndsAt != nil {
		fmt.Printf("grace period ends: %s\n", st.GracePeriodEndsAt.Format("2006-01-02 15:04:05"))
	}
	if st.SyncRequired {
		fmt.Printf("blocked: %s\n", st.BlockReason)
	}
}
