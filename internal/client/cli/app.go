package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/pulldeck/pulldeck/internal/client/app"
	"github.com/pulldeck/pulldeck/internal/client/config"
	"github.com/pulldeck/pulldeck/internal/client/session"
	"github.com/pulldeck/pulldeck/internal/logging"
)

// App is the interactive shell over the composition root.
type App struct {
	core   *app.App
	config *config.Config
	log    logging.Logger
	reader *bufio.Reader
	email  string
}

func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	core, err := app.New(ctx, c, log)
	if err != nil {
		return nil, err
	}

	a := &App{core: core, config: c, log: log, reader: bufio.NewReader(os.Stdin)}
	core.OnLogout = func(reason session.ExpireReason) {
		fmt.Printf("\nSession ended (%s), please log in again\n", reason)
		a.email = ""
	}
	return a, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.core.Close()
	if err := a.core.Start(ctx); err != nil {
		a.log.Error(ctx, "startup failed", "error", err)
		return
	}
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.core.Status().State != session.StateExpired && a.email != ""
}
