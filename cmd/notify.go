package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovetools/superstate/cli"
	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/pkg/models"
)

func NewNotifyCmd() *cobra.Command {
	var definitionFile string
	cmd := &cobra.Command{
		Use:   "notify <kind> <path> [old-path]",
		Short: "Report a change made outside the watched vault",
		Long: `Report a change and wait until every cached view reflects it.

Kinds: created, changed, deleted, renamed (path is the new path, old-path the
previous one), definition (with --definition pointing at a JSON space
definition), rename_tag (path is the new tag, old-path the old one) and
delete_tag.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildMutation(args, definitionFile)
			if err != nil {
				return err
			}
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Apply(cmd.Context(), m); err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, m)
			}
			pretty(cmd).Success(fmt.Sprintf("Applied %s %s", m.Kind, m.Path))
			return nil
		},
	}
	cmd.Flags().StringVar(&definitionFile, "definition", "", "JSON file holding the space definition")
	return cmd
}

func buildMutation(args []string, definitionFile string) (collector.Mutation, error) {
	m := collector.Mutation{Kind: collector.MutationKind(args[0]), Path: args[1]}
	if !m.Kind.Valid() || m.Kind == collector.MutationDeclared {
		return m, errors.New(errors.ErrCodeInvalidInput, "unknown mutation kind").WithDetail("kind", args[0])
	}
	if len(args) == 3 {
		m.OldPath = args[2]
	}
	switch m.Kind {
	case collector.MutationRenamed, collector.MutationRenameTag:
		if m.OldPath == "" {
			return m, errors.New(errors.ErrCodeInvalidInput, string(m.Kind)+" needs the old path")
		}
	case collector.MutationDefinition:
		if definitionFile == "" {
			return m, errors.New(errors.ErrCodeInvalidInput, "definition needs --definition")
		}
		data, err := os.ReadFile(definitionFile)
		if err != nil {
			return m, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read definition")
		}
		m.Definition = &models.SpaceDefinition{}
		if err := json.Unmarshal(data, m.Definition); err != nil {
			return m, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid definition")
		}
	}
	return m, nil
}
