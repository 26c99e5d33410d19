package cli

import (
	"context"
	"fmt"
)

func (a *App) showInbox(ctx context.Context) {
	notifs, err := a.core.Inbox.List(ctx, 50)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if len(notifs) == 0 {
		fmt.Println("Inbox is empty")
		return
	}
	for _, n := range notifs {
		marker := "*"
		if n.Read {
			marker = " "
		}
		detail := ""
		switch {
		case n.Details.Count > 0:
			detail = fmt.Sprintf("(%d)", n.Details.Count)
		case n.Details.To != "":
			detail = fmt.Sprintf("(%s -> %s)", n.Details.From, n.Details.To)
		case n.Details.Signal != "":
			detail = fmt.Sprintf("(via %s)", n.Details.Signal)
		}
		fmt.Printf("%s %s  %-20s %-18s %s  %s\n", marker,
			n.CreatedAt.Format("01-02 15:04"), n.ResourceID, n.Type, detail, n.ID)
	}
}

func (a *App) markRead(ctx context.Context, id string) {
	if err := a.core.Inbox.MarkRead(ctx, id); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Marked as read")
}
