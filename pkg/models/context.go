package models

import "sort"

// KeyColumn is the column that identifies a row by its member path.
const KeyColumn = "path"

// ColumnType is the closed set of column kinds. Evaluation dispatches on
// the declared type, never on the shape of a stored value.
type ColumnType string

const (
	ColumnText      ColumnType = "text"
	ColumnNumber    ColumnType = "number"
	ColumnBoolean   ColumnType = "boolean"
	ColumnDate      ColumnType = "date"
	ColumnOption    ColumnType = "option"
	ColumnLink      ColumnType = "link"
	ColumnRelation  ColumnType = "relation"
	ColumnAggregate ColumnType = "aggregate"
	ColumnFormula   ColumnType = "formula"
	ColumnFileProp  ColumnType = "fileprop"
	ColumnFlexible  ColumnType = "flexible"
)

// Valid reports whether t is one of the known column kinds.
func (t ColumnType) Valid() bool {
	switch t {
	case ColumnText, ColumnNumber, ColumnBoolean, ColumnDate, ColumnOption,
		ColumnLink, ColumnRelation, ColumnAggregate, ColumnFormula,
		ColumnFileProp, ColumnFlexible:
		return true
	}
	return false
}

// Derived reports whether values of this kind are computed by the linker
// rather than stored in the row.
func (t ColumnType) Derived() bool {
	switch t {
	case ColumnRelation, ColumnAggregate, ColumnFormula, ColumnFileProp, ColumnFlexible:
		return true
	}
	return false
}

// ColumnProps carries the per-kind configuration of a column.
//
//   - formula: Formula
//   - relation: Space, Key (column in the target table holding paths that
//     point back at this row; empty means the row's own stored list)
//   - aggregate: Ref (relation column in this row) or Space (whole sibling
//     table), Field (column collected from the target rows), Fn
//   - fileprop: Field (path attribute or metadata key)
//   - flexible: Kind selects formula or aggregate, then the fields above
type ColumnProps struct {
	Multi   bool       `json:"multi,omitempty" yaml:"multi,omitempty"`
	Options []string   `json:"options,omitempty" yaml:"options,omitempty"`
	Formula string     `json:"formula,omitempty" yaml:"formula,omitempty"`
	Space   string     `json:"space,omitempty" yaml:"space,omitempty"`
	Key     string     `json:"key,omitempty" yaml:"key,omitempty"`
	Ref     string     `json:"ref,omitempty" yaml:"ref,omitempty"`
	Field   string     `json:"field,omitempty" yaml:"field,omitempty"`
	Fn      string     `json:"fn,omitempty" yaml:"fn,omitempty"`
	Kind    ColumnType `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Column is one column definition of a context table.
type Column struct {
	Name    string      `json:"name" yaml:"name"`
	Schema  string      `json:"schema,omitempty" yaml:"schema,omitempty"`
	Type    ColumnType  `json:"type" yaml:"type"`
	Props   ColumnProps `json:"props,omitempty" yaml:"props,omitempty"`
	Synced  bool        `json:"synced,omitempty" yaml:"synced,omitempty"`
	Primary bool        `json:"primary,omitempty" yaml:"primary,omitempty"`
}

// EffectiveType resolves a flexible column to the kind it evaluates as.
func (c Column) EffectiveType() ColumnType {
	if c.Type == ColumnFlexible && c.Props.Kind != "" {
		return c.Props.Kind
	}
	return c.Type
}

// TableSchema describes one table stored for a space.
type TableSchema struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Primary bool   `json:"primary,omitempty" yaml:"primary,omitempty"`
}

// Row maps column names to stored raw values.
type Row map[string]string

// Clone copies the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Key returns the row's path.
func (r Row) Key() string {
	return r[KeyColumn]
}

// Table is a materialized context table.
type Table struct {
	Schema TableSchema `json:"schema" yaml:"schema"`
	Cols   []Column    `json:"cols" yaml:"cols"`
	Rows   []Row       `json:"rows" yaml:"rows"`
}

// NewTable returns an empty primary table carrying only the key column.
func NewTable(name string) *Table {
	return &Table{
		Schema: TableSchema{ID: "main", Name: name, Type: "db", Primary: true},
		Cols: []Column{{
			Name:    KeyColumn,
			Schema:  "main",
			Type:    ColumnLink,
			Primary: true,
		}},
	}
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := &Table{Schema: t.Schema, Cols: make([]Column, len(t.Cols)), Rows: make([]Row, len(t.Rows))}
	for i, col := range t.Cols {
		col.Props.Options = append([]string(nil), col.Props.Options...)
		c.Cols[i] = col
	}
	for i, r := range t.Rows {
		c.Rows[i] = r.Clone()
	}
	return c
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Cols {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// RowIndex returns the index of the row keyed by key, or -1.
func (t *Table) RowIndex(key string) int {
	for i, r := range t.Rows {
		if r.Key() == key {
			return i
		}
	}
	return -1
}

// Keys returns the key of every row in table order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		keys = append(keys, r.Key())
	}
	return keys
}

// ColumnTypes maps every column name to its declared type.
func (t *Table) ColumnTypes() map[string]ColumnType {
	types := make(map[string]ColumnType, len(t.Cols))
	for _, c := range t.Cols {
		types[c.Name] = c.EffectiveType()
	}
	return types
}

// ReferencedSpaces lists the spaces whose tables this table's relation and
// aggregate columns read, sorted.
func (t *Table) ReferencedSpaces() []string {
	seen := make(map[string]struct{})
	for _, c := range t.Cols {
		switch c.EffectiveType() {
		case ColumnRelation, ColumnAggregate:
			if c.Props.Space != "" {
				seen[c.Props.Space] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// LinkedRow holds the effective value of every column of one row.
type LinkedRow map[string]Value

// ContextState is the cached state of one space's context table.
// Every row key is a member of the owning space.
type ContextState struct {
	Space        string               `json:"space"`
	Schemas      []TableSchema        `json:"schemas"`
	Table        *Table               `json:"table"`
	Contents     []string             `json:"contents"`
	Exists       bool                 `json:"exists"`
	Outdated     bool                 `json:"outdated"`
	Dependencies []string             `json:"dependencies,omitempty"`
	Linked       map[string]LinkedRow `json:"-"`
}

// Clone deep-copies the state. Linked rows are shared since they are
// replaced wholesale and never edited.
func (c *ContextState) Clone() *ContextState {
	if c == nil {
		return nil
	}
	out := *c
	out.Schemas = append([]TableSchema(nil), c.Schemas...)
	out.Table = c.Table.Clone()
	out.Contents = append([]string(nil), c.Contents...)
	out.Dependencies = append([]string(nil), c.Dependencies...)
	return &out
}
