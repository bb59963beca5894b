package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/superstate/pkg/models"
)

func row(kv ...interface{}) Record {
	r := models.LinkedRow{}
	for i := 0; i < len(kv); i += 2 {
		r[kv[i].(string)] = models.FromNative(kv[i+1])
	}
	return RowRecord{Row: r}
}

func keys(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Value("path").String()
	}
	return out
}

func TestEvaluateOperators(t *testing.T) {
	tests := []struct {
		name  string
		f     models.Filter
		value models.Value
		typ   models.ColumnType
		want  bool
	}{
		{"contains", models.Filter{Fn: FnContains, Value: "ell"}, models.Text("Hello"), models.ColumnText, true},
		{"not contains", models.Filter{Fn: FnNotContains, Value: "x"}, models.Text("Hello"), models.ColumnText, true},
		{"is folds case", models.Filter{Fn: FnIs, Value: "done"}, models.Text("Done"), models.ColumnText, true},
		{"is_not", models.Filter{Fn: FnIsNot, Value: "done"}, models.Text("todo"), models.ColumnText, true},
		{"starts_with", models.Filter{Fn: FnStartsWith, Value: "/docs"}, models.Text("/docs/a.md"), models.ColumnText, true},
		{"ends_with", models.Filter{Fn: FnEndsWith, Value: ".md"}, models.Text("/docs/a.md"), models.ColumnText, true},
		{"glob", models.Filter{Fn: FnGlob, Value: "/docs/**/*.md"}, models.Text("/docs/x/a.md"), models.ColumnText, true},
		{"gt on text number", models.Filter{Fn: FnGt, Value: "2"}, models.Text("3"), models.ColumnNumber, true},
		{"lte", models.Filter{Fn: FnLte, Value: "2"}, models.Number(3), models.ColumnNumber, false},
		{"before", models.Filter{Fn: FnBefore, Value: "2024-02-01"}, models.Text("2024-01-15"), models.ColumnDate, true},
		{"after", models.Filter{Fn: FnAfter, Value: "2024-02-01"}, models.Text("2024-01-15"), models.ColumnDate, false},
		{"same day", models.Filter{Fn: FnSameDay, Value: "2024-01-15"}, models.Text("2024-01-15T10:00:00Z"), models.ColumnDate, true},
		{"any_of", models.Filter{Fn: FnAnyOf, Value: "a, z"}, models.FromNative([]string{"a", "b"}), models.ColumnOption, true},
		{"none_of", models.Filter{Fn: FnNoneOf, Value: "z"}, models.FromNative([]string{"a", "b"}), models.ColumnOption, true},
		{"all_of", models.Filter{Fn: FnAllOf, Value: "a, z"}, models.FromNative([]string{"a", "b"}), models.ColumnOption, false},
		{"checked", models.Filter{Fn: FnChecked}, models.Text("true"), models.ColumnBoolean, true},
		{"unchecked", models.Filter{Fn: FnUnchecked}, models.Empty(), models.ColumnBoolean, true},
		{"is_empty", models.Filter{Fn: FnIsEmpty}, models.List(), models.ColumnOption, true},
		{"is_not_empty", models.Filter{Fn: FnIsNotEmpty}, models.Text("x"), models.ColumnText, true},
		{"unknown", models.Filter{Fn: "bogus"}, models.Text("x"), models.ColumnText, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.f, tt.value, tt.typ))
		})
	}
}

func TestMatchGroups(t *testing.T) {
	rec := row("path", "/docs/a.md", "status", "done", "points", 5)
	types := Types{"points": models.ColumnNumber}

	all := models.FilterGroup{Type: models.GroupAll, Filters: []models.Filter{
		{Field: "status", Fn: FnIs, Value: "done"},
		{Field: "points", Fn: FnGte, Value: "5"},
	}}
	assert.True(t, Match(all, rec, types))

	anyGroup := models.FilterGroup{Type: models.GroupAny, Filters: []models.Filter{
		{Field: "status", Fn: FnIs, Value: "todo"},
	}, Groups: []models.FilterGroup{{Filters: []models.Filter{{Field: "points", Fn: FnEq, Value: "5"}}}}}
	assert.True(t, Match(anyGroup, rec, types))

	anyGroup.Groups = nil
	assert.False(t, Match(anyGroup, rec, types))

	assert.True(t, Match(models.FilterGroup{}, rec, types))
}

func TestSortIsStableAndTypeAware(t *testing.T) {
	recs := []Record{
		row("path", "a", "n", "10", "done", false),
		row("path", "b", "n", "9", "done", true),
		row("path", "c", "n", "10", "done", true),
		row("path", "d", "done", false),
	}
	types := Types{"n": models.ColumnNumber, "done": models.ColumnBoolean}

	Sort(recs, []models.SortKey{{Field: "n"}}, types)
	assert.Equal(t, []string{"b", "a", "c", "d"}, keys(recs))

	Sort(recs, []models.SortKey{{Field: "n", Desc: true}, {Field: "done"}}, types)
	assert.Equal(t, []string{"a", "c", "b", "d"}, keys(recs))

	Sort(recs, nil, types)
	assert.Equal(t, []string{"a", "c", "b", "d"}, keys(recs))
}

func TestRunFiltersSortsAndLimits(t *testing.T) {
	recs := []Record{
		row("path", "/docs/b.md"),
		row("path", "/notes/x.md"),
		row("path", "/docs/a.md"),
	}
	view := models.View{
		Filters: models.FilterGroup{Filters: []models.Filter{{Field: "path", Fn: FnStartsWith, Value: "/docs"}}},
		Sort:    []models.SortKey{{Field: "path"}},
	}
	out := Run(recs, view, nil)
	assert.Equal(t, []string{"/docs/a.md", "/docs/b.md"}, keys(out))
	assert.Equal(t, "/docs/b.md", recs[0].Value("path").String(), "input must not be reordered")

	view.Limit = 1
	assert.Len(t, Run(recs, view, nil), 1)
}

func TestAggregate(t *testing.T) {
	nums := []models.Value{models.Number(1), models.Text("4"), models.Empty(), models.List(models.Number(3), models.Number(2))}

	tests := []struct {
		fn   string
		want string
	}{
		{AggSum, "10"},
		{AggAvg, "2.5"},
		{AggMin, "1"},
		{AggMax, "4"},
		{AggMedian, "2.5"},
		{AggRange, "3"},
		{AggCount, "4"},
		{AggCountEmpty, "1"},
		{AggCountNotEmpty, "3"},
		{AggCountUnique, "4"},
		{AggValues, "1, 4, 3, 2"},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			got, err := Aggregate(tt.fn, nums)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	dates := []models.Value{models.Text("2024-03-01"), models.Text("2024-01-01")}
	got, err := Aggregate(AggDateRange, dates)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01/2024-03-01", got.String())

	got, err = Aggregate(AggPercentComplete, []models.Value{models.Bool(true), models.Text("false"), models.Text("yes"), models.Empty()})
	require.NoError(t, err)
	assert.Equal(t, "50", got.String())

	_, err = Aggregate("bogus", nums)
	assert.Error(t, err)
}

func TestMatchPath(t *testing.T) {
	def := &models.SpaceDefinition{Joins: []models.Join{{
		Filters: models.FilterGroup{Filters: []models.Filter{{Field: "path", Fn: FnStartsWith, Value: "/docs"}}},
	}}}
	assert.True(t, MatchPath(def, &models.PathState{Path: "/docs/a.md"}))
	assert.False(t, MatchPath(def, &models.PathState{Path: "/notes/a.md"}))
	assert.False(t, MatchPath(def, &models.PathState{Path: "spaces://docs"}))

	scoped := &models.SpaceDefinition{Joins: []models.Join{{
		Path: "/projects",
		Filters: models.FilterGroup{Filters: []models.Filter{
			{Field: "status", Fn: FnIs, Value: "active"},
			{Field: "tags", Fn: FnAnyOf, Value: "#work"},
		}},
	}}}
	active := &models.PathState{
		Path:     "/projects/p.md",
		Tags:     []string{"#work"},
		Metadata: map[string]interface{}{"status": "active"},
	}
	assert.True(t, MatchPath(scoped, active))

	nested := active.Clone()
	nested.Path = "/projects/sub/p.md"
	assert.False(t, MatchPath(scoped, nested))
	scoped.Joins[0].Recursive = true
	assert.True(t, MatchPath(scoped, nested))
}
