package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grovetools/superstate/cli"
	"github.com/grovetools/superstate/pkg/daemon"
)

func NewEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream change events from the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := daemon.Connect(cfg.Server.Socket)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			events, err := client.StreamEvents(ctx)
			if err != nil {
				return err
			}
			jsonOut := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()
			for ev := range events {
				if jsonOut {
					data, _ := json.Marshal(ev)
					fmt.Fprintln(out, string(data))
					continue
				}
				line := fmt.Sprintf("%-26s %s", ev.Type, ev.Path)
				if ev.OldPath != "" {
					line += " (from " + ev.OldPath + ")"
				}
				if ev.Space != "" {
					line += " [" + ev.Space + "]"
				}
				if ev.Error != "" {
					line += " error: " + ev.Error
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
