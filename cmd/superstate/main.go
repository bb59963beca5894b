package main

import (
	"os"

	"github.com/grovetools/superstate/cli"
	"github.com/grovetools/superstate/cmd"
	"github.com/grovetools/superstate/pkg/profiling"
)

func main() {
	rootCmd := cli.NewStandardCommand("superstate", "Incremental index of a markdown vault")
	profiling.NewCobraProfiler().AddFlags(rootCmd)

	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewStopCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewIndexCmd())
	rootCmd.AddCommand(cmd.NewQueryCmd())
	rootCmd.AddCommand(cmd.NewSearchCmd())
	rootCmd.AddCommand(cmd.NewFocusCmd())
	rootCmd.AddCommand(cmd.NewNotifyCmd())
	rootCmd.AddCommand(cmd.NewEventsCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewPathsCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("superstate"))

	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
