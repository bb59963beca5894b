package linker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/pkg/models"
)

type fakeSource struct {
	paths    map[string]*models.PathState
	contexts map[string]*models.ContextState
	spaces   map[string][]string
}

func (f *fakeSource) Path(p string) *models.PathState { return f.paths[p] }

func (f *fakeSource) Context(s string) *models.ContextState { return f.contexts[s] }

func (f *fakeSource) SpacesOf(p string) []string { return f.spaces[p] }

func (f *fakeSource) Members(space string) []string {
	var out []string
	for p, ss := range f.spaces {
		for _, s := range ss {
			if s == space {
				out = append(out, p)
			}
		}
	}
	return out
}

func newEvaluator(t *testing.T) *ExprEvaluator {
	t.Helper()
	ev, err := NewExprEvaluator(16)
	require.NoError(t, err)
	return ev
}

func projectFixture() (*fakeSource, *models.Table) {
	tasks := models.NewTable("tasks")
	tasks.Cols = append(tasks.Cols,
		models.Column{Name: "project", Type: models.ColumnLink, Props: models.ColumnProps{Multi: true}},
		models.Column{Name: "hours", Type: models.ColumnNumber},
		models.Column{Name: "done", Type: models.ColumnBoolean},
	)
	tasks.Rows = []models.Row{
		{"path": "/tasks/t1.md", "project": "[[/projects/p.md]]", "hours": "3", "done": "true"},
		{"path": "/tasks/t2.md", "project": "/projects/p.md", "hours": "5", "done": "false"},
		{"path": "/tasks/t3.md", "project": "/projects/other.md", "hours": "8"},
	}

	projects := models.NewTable("projects")
	projects.Cols = append(projects.Cols,
		models.Column{Name: "status", Type: models.ColumnOption, Synced: true},
		models.Column{Name: "tasks", Type: models.ColumnRelation, Props: models.ColumnProps{Space: "/tasks", Key: "project"}},
		models.Column{Name: "hours", Type: models.ColumnAggregate, Props: models.ColumnProps{Ref: "tasks", Field: "hours", Fn: "sum"}},
		models.Column{Name: "progress", Type: models.ColumnAggregate, Props: models.ColumnProps{Ref: "tasks", Field: "done", Fn: "percent_complete"}},
		models.Column{Name: "label", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `prop("upper") + " (" + prop("status") + ")"`}},
		models.Column{Name: "upper", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `upper(file.name)`}},
		models.Column{Name: "total", Type: models.ColumnFlexible, Props: models.ColumnProps{Kind: models.ColumnAggregate, Space: "/tasks", Field: "hours", Fn: "max"}},
		models.Column{Name: "double", Type: models.ColumnFlexible, Props: models.ColumnProps{Kind: models.ColumnFormula, Formula: `prop("hours") * 2`}},
	)
	projects.Rows = []models.Row{{"path": "/projects/p.md", "status": "stale"}}

	src := &fakeSource{
		paths: map[string]*models.PathState{
			"/projects/p.md": {Path: "/projects/p.md", Name: "p", Metadata: map[string]interface{}{"status": "active"}},
		},
		contexts: map[string]*models.ContextState{
			"/tasks": {Space: "/tasks", Table: tasks},
		},
		spaces: map[string][]string{"/projects/p.md": {"/projects"}},
	}
	return src, projects
}

func TestLinkTableLayersValues(t *testing.T) {
	src, projects := projectFixture()
	l := New(newEvaluator(t), src, nil)

	rows, err := l.LinkTable(projects)
	require.NoError(t, err)
	row := rows["/projects/p.md"]
	require.NotNil(t, row)

	assert.Equal(t, "active", row["status"].String(), "synced metadata overrides the stored value")
	assert.Equal(t, "/tasks/t1.md, /tasks/t2.md", row["tasks"].String())
	assert.Equal(t, "8", row["hours"].String())
	assert.Equal(t, "50", row["progress"].String())
	assert.Equal(t, "P", row["upper"].String())
	assert.Equal(t, "P (active)", row["label"].String(), "formula sees the formula it depends on")
	assert.Equal(t, "8", row["total"].String())
	assert.Equal(t, "16", row["double"].String(), "flexible formula sees aggregates")
}

func TestRelationFromStoredList(t *testing.T) {
	src, _ := projectFixture()
	tbl := models.NewTable("reading")
	tbl.Cols = append(tbl.Cols, models.Column{Name: "refs", Type: models.ColumnRelation, Props: models.ColumnProps{Space: "/tasks"}})
	tbl.Rows = []models.Row{{"path": "/r.md", "refs": "[[/tasks/t3.md]], /tasks/missing.md"}}

	row, err := New(nil, src, nil).LinkRow(tbl.Rows[0], tbl)
	require.NoError(t, err)
	assert.Equal(t, "/tasks/t3.md", row["refs"].String())
}

func TestFormulaCycleIsAnError(t *testing.T) {
	src, _ := projectFixture()
	tbl := models.NewTable("loop")
	tbl.Cols = append(tbl.Cols,
		models.Column{Name: "a", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `prop("b") + 1`}},
		models.Column{Name: "b", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `prop("a") + 1`}},
	)
	tbl.Rows = []models.Row{{"path": "/x.md"}}

	rows, err := New(newEvaluator(t), src, nil).LinkTable(tbl)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, errors.Is(err, errors.ErrCodeDependencyCycle))
	assert.Contains(t, err.Error(), "a -> b -> a")

	_, err = New(newEvaluator(t), src, nil).LinkRow(tbl.Rows[0], tbl)
	assert.True(t, errors.Is(err, errors.ErrCodeDependencyCycle))
}

func TestFormulaOrder(t *testing.T) {
	cols := []models.Column{
		{Name: "c", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `prop("b")`}},
		{Name: "b", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `prop("a") + prop("text")`}},
		{Name: "text", Type: models.ColumnText},
		{Name: "a", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `1`}},
	}
	order, err := FormulaOrder(cols)
	require.NoError(t, err)
	names := make([]string, len(order))
	for i, c := range order {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, []string{"a", "text"}, References(`prop("a") + prop( "text" ) + prop("a")`))
}

func TestLinkingIsIdempotent(t *testing.T) {
	src, projects := projectFixture()
	l := New(newEvaluator(t), src, nil)

	first, err := l.LinkTable(projects)
	require.NoError(t, err)
	second, err := l.LinkTable(projects)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestEvaluatorErrorsLeaveColumnEmpty(t *testing.T) {
	src, _ := projectFixture()
	tbl := models.NewTable("bad")
	tbl.Cols = append(tbl.Cols, models.Column{Name: "broken", Type: models.ColumnFormula, Props: models.ColumnProps{Formula: `(((`}})
	tbl.Rows = []models.Row{{"path": "/projects/p.md"}}

	rows, err := New(newEvaluator(t), src, nil).LinkTable(tbl)
	require.NoError(t, err)
	assert.True(t, rows["/projects/p.md"]["broken"].IsEmpty())

	_, err = newEvaluator(t).Evaluate(`(((`, Scope{})
	assert.True(t, errors.Is(err, errors.ErrCodeExpressionFailed))
}

func TestEvaluatorScopeHelpers(t *testing.T) {
	src, _ := projectFixture()
	ev := newEvaluator(t)

	v, err := ev.Evaluate(`len(members("/projects"))`, Scope{Source: src})
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())

	v, err = ev.Evaluate(`"/projects" in spacesOf(file.path)`, Scope{Source: src, Path: src.paths["/projects/p.md"]})
	require.NoError(t, err)
	assert.Equal(t, "true", v.String())
}
