package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/grovetools/superstate/cli"
	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/query"
	"github.com/grovetools/superstate/pkg/daemon"
	"github.com/grovetools/superstate/pkg/models"
)

// openClient loads the configuration and returns the daemon client, or an
// in-process one when no daemon listens.
func openClient(cmd *cobra.Command) (daemon.Client, error) {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.New(cmd.Context(), cfg, cli.GetLogger(cmd, cfg, "client"))
}

func NewQueryCmd() *cobra.Command {
	var (
		filters  filterFlag
		sorts    []string
		limit    int
		matchAny bool
	)
	cmd := &cobra.Command{
		Use:   "query <space>",
		Short: "Print the filtered and sorted table of a space",
		Long: `Print the rows of a space's context table.

Filters take the form field:fn:value, for example status:is:done or
due:before:2024-01-01. Sort keys take the form field or field:desc.

Filter functions: contains, not_contains, is, is_not, starts_with, ends_with,
glob, eq, gt, gte, lt, lte, before, after, same_day, any_of, none_of, all_of,
checked, unchecked, is_empty, is_not_empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := buildView(filters, sorts, limit, matchAny)
			if err != nil {
				return err
			}
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			rows, err := client.Query(cmd.Context(), args[0], view)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rows")
				return nil
			}
			printRows(cmd, rows)
			return nil
		},
	}
	cmd.Flags().VarP(&filters, "filter", "f", "Filter as field:fn:value (repeatable)")
	cmd.Flags().StringArrayVarP(&sorts, "sort", "s", nil, "Sort key as field or field:desc (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of rows")
	cmd.Flags().BoolVar(&matchAny, "any", false, "Match rows passing any filter instead of all")
	return cmd
}

// filterFlag collects repeated --filter values, parsing each as it is set.
type filterFlag []models.Filter

var _ pflag.Value = (*filterFlag)(nil)

func (f *filterFlag) String() string {
	parts := make([]string, len(*f))
	for i, x := range *f {
		parts[i] = x.Field + ":" + x.Fn
		if x.Value != "" {
			parts[i] += ":" + x.Value
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (f *filterFlag) Set(s string) error {
	parsed, err := parseFilter(s)
	if err != nil {
		return err
	}
	*f = append(*f, parsed)
	return nil
}

func (f *filterFlag) Type() string { return "filter" }

// buildView turns command line flags into a view.
func buildView(filters []models.Filter, sorts []string, limit int, matchAny bool) (models.View, error) {
	view := models.View{Limit: limit, Filters: models.FilterGroup{Type: models.GroupAll, Filters: filters}}
	if matchAny {
		view.Filters.Type = models.GroupAny
	}
	for _, s := range sorts {
		key, err := parseSort(s)
		if err != nil {
			return models.View{}, err
		}
		view.Sort = append(view.Sort, key)
	}
	if limit < 0 {
		return models.View{}, errors.New(errors.ErrCodeInvalidInput, "limit must not be negative")
	}
	return view, nil
}

// parseFilter splits field:fn[:value]. The value keeps any further colons.
func parseFilter(s string) (models.Filter, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return models.Filter{}, errors.New(errors.ErrCodeInvalidInput, "filter must be field:fn[:value]").
			WithDetail("filter", s)
	}
	if !query.KnownFn(parts[1]) {
		return models.Filter{}, errors.New(errors.ErrCodeInvalidInput, "unknown filter function").
			WithDetail("fn", parts[1])
	}
	f := models.Filter{Field: parts[0], Fn: parts[1]}
	if len(parts) == 3 {
		f.Value = parts[2]
	}
	return f, nil
}

func parseSort(s string) (models.SortKey, error) {
	field, dir, _ := strings.Cut(s, ":")
	if field == "" {
		return models.SortKey{}, errors.New(errors.ErrCodeInvalidInput, "sort key needs a field").WithDetail("sort", s)
	}
	switch strings.ToLower(dir) {
	case "", "asc":
		return models.SortKey{Field: field}, nil
	case "desc":
		return models.SortKey{Field: field, Desc: true}, nil
	}
	return models.SortKey{}, errors.New(errors.ErrCodeInvalidInput, "sort direction must be asc or desc").
		WithDetail("sort", s)
}

func NewSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find paths by name and content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			hits, err := client.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, hits)
			}
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6.2f %s\n", h.Score, h.Path)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	return cmd
}
