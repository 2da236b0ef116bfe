// Command docrag-ingest manages the document store from the command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docrag/internal/app"
	"docrag/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, closeApp := newRootCmd(loadApp)
	root.SetOut(os.Stdout)
	err := root.ExecuteContext(ctx)
	if cerr := closeApp(); cerr != nil {
		slog.Error("Failed to close resources", "error", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// loadApp builds the application from environment configuration and logs to stderr.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.SetDefault(app.NewLogger(cfg, os.Stderr))
	return app.New(ctx, cfg)
}

// cli holds the application shared by subcommands for one invocation.
type cli struct {
	load func(ctx context.Context) (*app.App, error)
	app  *app.App
}

// newRootCmd builds the command tree. The returned func closes the
// application if a subcommand opened it.
func newRootCmd(load func(ctx context.Context) (*app.App, error)) (*cobra.Command, func() error) {
	c := &cli{load: load}
	root := &cobra.Command{
		Use:          "docrag-ingest",
		Short:        "Manage the docrag document store",
		Long:         "Add, list, rename and remove documents and run retrieval queries against the store.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	root.AddCommand(
		c.newAddCmd(),
		c.newListCmd(),
		c.newRmCmd(),
		c.newRenameCmd(),
		c.newSearchCmd(),
		c.newExtractCmd(),
	)
	return root, c.close
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
