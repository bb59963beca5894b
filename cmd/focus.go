package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovetools/superstate/cli"
	"github.com/grovetools/superstate/pkg/models"
)

func NewFocusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focus",
		Short: "Show or edit the focus lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			focuses, err := client.Focuses(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, focuses)
			}
			for _, f := range focuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", f.Name, strings.Join(f.Paths, ", "))
			}
			return nil
		},
	}
	cmd.AddCommand(newFocusSetCmd(), newFocusClearCmd())
	return cmd
}

func newFocusSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <path>...",
		Short: "Replace one focus list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			focuses, err := client.Focuses(cmd.Context())
			if err != nil {
				return err
			}
			focuses = setFocus(focuses, models.Focus{Name: args[0], Paths: args[1:]})
			return client.SetFocuses(cmd.Context(), focuses)
		},
	}
}

func newFocusClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <name>",
		Short: "Remove one focus list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			focuses, err := client.Focuses(cmd.Context())
			if err != nil {
				return err
			}
			return client.SetFocuses(cmd.Context(), setFocus(focuses, models.Focus{Name: args[0]}))
		},
	}
}

// setFocus replaces the list named f.Name, keeping the order of the others.
// A list without paths is removed.
func setFocus(focuses []models.Focus, f models.Focus) []models.Focus {
	out := make([]models.Focus, 0, len(focuses)+1)
	replaced := false
	for _, existing := range focuses {
		if existing.Name != f.Name {
			out = append(out, existing)
			continue
		}
		replaced = true
		if len(f.Paths) > 0 {
			out = append(out, f)
		}
	}
	if !replaced && len(f.Paths) > 0 {
		out = append(out, f)
	}
	return out
}
