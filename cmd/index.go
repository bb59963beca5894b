package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/superstate/cli"
	rt "github.com/grovetools/superstate/internal/daemon"
	"github.com/grovetools/superstate/pkg/daemon"
)

// NewIndexCmd returns the one-shot reindex command.
func NewIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Reindex the vault once and persist the result",
		Long: `Walk the vault, rebuild every cached path, space and context, and write
the result to the database. When the daemon is running it already keeps the
index current, so its counters are printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cli.GetLogger(cmd, cfg, "index")
			jsonOut := cli.GetOptions(cmd).JSONOutput

			if daemon.Dialable(cfg.Server.Socket) {
				client, err := daemon.Connect(cfg.Server.Socket)
				if err != nil {
					return err
				}
				defer client.Close()
				stats, err := client.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd, stats)
				}
				pretty(cmd).Info("Daemon is running; the index is current")
				printStats(cmd, stats)
				return nil
			}

			start := time.Now()
			runtime, err := rt.Open(cfg, logger)
			if err != nil {
				return err
			}
			if err := runtime.Initialize(cmd.Context()); err != nil {
				_ = runtime.Close(context.Background())
				return err
			}
			stats := runtime.Engine.Stats()
			if err := runtime.Close(context.Background()); err != nil {
				return err
			}

			if jsonOut {
				return printJSON(cmd, stats)
			}
			p := pretty(cmd)
			p.Success(fmt.Sprintf("Indexed in %s", time.Since(start).Round(time.Millisecond)))
			p.Path("Vault", runtime.Vault.Root())
			printStats(cmd, &stats)
			return nil
		},
	}
}
