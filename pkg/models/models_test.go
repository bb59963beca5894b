package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueString(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"empty", Empty(), ""},
		{"text", Text("hello"), "hello"},
		{"integer", Number(3), "3"},
		{"fraction", Number(2.5), "2.5"},
		{"bool", Bool(true), "true"},
		{"date only", Date(day), "2024-03-05"},
		{"date time", Date(day.Add(90 * time.Minute)), "2024-03-05T01:30:00Z"},
		{"list", List(Text("a"), Number(1)), "a, 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.String())
		})
	}
}

func TestParseValueByColumnType(t *testing.T) {
	num := ParseValue("42", Column{Type: ColumnNumber})
	assert.Equal(t, KindNumber, num.Kind)
	assert.Equal(t, 42.0, num.Number)

	bad := ParseValue("n/a", Column{Type: ColumnNumber})
	assert.Equal(t, KindText, bad.Kind)

	flag := ParseValue("yes", Column{Type: ColumnBoolean})
	assert.True(t, flag.Bool)

	date := ParseValue("2024-01-02", Column{Type: ColumnDate})
	require.Equal(t, KindDate, date.Kind)
	assert.Equal(t, "2024-01-02", date.String())

	links := ParseValue("[[a.md]], b.md", Column{Type: ColumnLink, Props: ColumnProps{Multi: true}})
	require.Equal(t, KindList, links.Kind)
	assert.Equal(t, "a.md, b.md", links.String())

	single := ParseValue("[[a.md|A]]", Column{Type: ColumnLink})
	assert.Equal(t, Text("a.md"), single)

	options := ParseValue("x, y", Column{Type: ColumnOption, Props: ColumnProps{Multi: true}})
	assert.Len(t, options.List, 2)

	assert.True(t, ParseValue("   ", Column{Type: ColumnText}).IsEmpty())
}

func TestFromNative(t *testing.T) {
	assert.Equal(t, Number(3), FromNative(3))
	assert.Equal(t, Text("x"), FromNative("x"))
	assert.Equal(t, "a, b", FromNative([]interface{}{"a", "b"}).String())
	assert.Equal(t, "a: 1, b: x", FromNative(map[string]interface{}{"b": "x", "a": 1}).String())
	assert.True(t, FromNative(nil).IsEmpty())
}

func TestTagHelpers(t *testing.T) {
	assert.Equal(t, "#todo", NormalizeTag("Todo"))
	assert.Equal(t, "spaces://#todo", TagSpacePath("#todo"))
	assert.True(t, IsTagSpace("spaces://#todo"))
	assert.Equal(t, "#todo", BaseName("spaces://#todo"))
	assert.Equal(t, "a", BaseName("/docs/a.md"))
	assert.Equal(t, "/docs", ParentPath("/docs/a.md"))
	assert.Equal(t, "/", ParentPath("/a.md"))
}

func TestTableHelpers(t *testing.T) {
	tbl := NewTable("docs")
	tbl.Cols = append(tbl.Cols,
		Column{Name: "tasks", Type: ColumnRelation, Props: ColumnProps{Space: "/tasks"}},
		Column{Name: "total", Type: ColumnFlexible, Props: ColumnProps{Kind: ColumnAggregate, Space: "/budget"}},
	)
	tbl.Rows = append(tbl.Rows, Row{KeyColumn: "/docs/a.md"})

	assert.Equal(t, []string{"/budget", "/tasks"}, tbl.ReferencedSpaces())
	assert.Equal(t, 0, tbl.RowIndex("/docs/a.md"))
	assert.Equal(t, -1, tbl.RowIndex("/docs/b.md"))

	clone := tbl.Clone()
	clone.Rows[0][KeyColumn] = "/docs/b.md"
	assert.Equal(t, "/docs/a.md", tbl.Rows[0].Key())
}
