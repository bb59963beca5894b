package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovetools/superstate/internal/daemon/engine"
	"github.com/grovetools/superstate/logging"
	"github.com/grovetools/superstate/pkg/daemon"
	"github.com/grovetools/superstate/pkg/models"
)

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func pretty(cmd *cobra.Command) *logging.PrettyLogger {
	return logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
}

func printStats(cmd *cobra.Command, s *engine.Stats) {
	p := pretty(cmd)
	p.Field("Paths", s.Paths)
	p.Field("Spaces", s.Spaces)
	p.Field("Contexts", s.Contexts)
	p.Field("Queued", s.Queued)
	p.Field("Stale", s.Stale)
	p.Field("Dead letters", s.DeadLetters)
	p.Field("Jobs executed", s.Dispatcher.Executed)
	p.Field("Jobs failed", s.Dispatcher.Failed)
	if s.DeadLetters > 0 {
		p.Warn(fmt.Sprintf("%d operations failed; see the log for details", s.DeadLetters))
	}
}

// printRows writes rows as a table. The key column comes first, the
// remaining columns in name order.
func printRows(cmd *cobra.Command, rows []daemon.Row) {
	seen := map[string]bool{models.KeyColumn: true}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	cols = append([]string{models.KeyColumn}, cols...)

	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = strings.ToUpper(c)
	}
	t := logging.NewTable(cmd.OutOrStdout()).Headers(headers...)
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = cell(r[c])
		}
		t.Row(cells...)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
}

func cell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = cell(e)
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}, bool, float64:
		data, _ := json.Marshal(t)
		return string(data)
	}
	return fmt.Sprint(v)
}
