// Package linker computes the effective values of context table rows.
//
// Values are layered in a fixed order: stored values, synced path
// metadata, formulas, relations, aggregates and finally flexible columns
// resolved to a formula or aggregate. Formulas run in dependency order.
package linker

import (
	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/internal/query"
	"github.com/grovetools/superstate/pkg/models"
)

// Source is the read-only view of the caches the linker resolves against.
type Source interface {
	Path(path string) *models.PathState
	Context(space string) *models.ContextState
	SpacesOf(path string) []string
	Members(space string) []string
}

// Scope is what a formula sees while it is evaluated.
type Scope struct {
	Row    models.LinkedRow
	Path   *models.PathState
	Source Source
}

// Evaluator evaluates formula expressions.
type Evaluator interface {
	Evaluate(expression string, scope Scope) (models.Value, error)
}

// Linker produces linked rows for tables read from a Source.
type Linker struct {
	eval   Evaluator
	src    Source
	logger *logrus.Entry
}

// New creates a linker. A nil evaluator leaves formula columns empty.
func New(eval Evaluator, src Source, logger *logrus.Entry) *Linker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Linker{eval: eval, src: src, logger: logger}
}

// LinkTable links every row of table. A formula cycle fails the whole
// table and no rows are returned.
func (l *Linker) LinkTable(table *models.Table) (map[string]models.LinkedRow, error) {
	order, err := FormulaOrder(table.Cols)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.LinkedRow, len(table.Rows))
	for _, row := range table.Rows {
		out[row.Key()] = l.link(row, table, order)
	}
	return out, nil
}

// LinkRow links a single row of table.
func (l *Linker) LinkRow(row models.Row, table *models.Table) (models.LinkedRow, error) {
	order, err := FormulaOrder(table.Cols)
	if err != nil {
		return nil, err
	}
	return l.link(row, table, order), nil
}

func (l *Linker) link(row models.Row, table *models.Table, formulas []models.Column) models.LinkedRow {
	key := row.Key()
	p := l.src.Path(key)
	out := make(models.LinkedRow, len(table.Cols))

	// stored
	for _, c := range table.Cols {
		if c.Type.Derived() {
			continue
		}
		out[c.Name] = models.ParseValue(row[c.Name], c)
	}

	// synced metadata and file properties
	if p != nil {
		rec := query.PathRecord{State: p}
		for _, c := range table.Cols {
			switch {
			case c.Type == models.ColumnFileProp:
				field := c.Props.Field
				if field == "" {
					field = c.Name
				}
				out[c.Name] = rec.Value(field)
			case c.Synced && !c.Primary:
				if v, ok := p.Metadata[c.Name]; ok {
					out[c.Name] = typed(models.FromNative(v), c)
				}
			}
		}
	}

	l.formulas(out, p, formulas, false)

	for _, c := range table.Cols {
		if c.Type == models.ColumnRelation {
			out[c.Name] = l.relation(row, c)
		}
	}
	for _, c := range table.Cols {
		if c.Type == models.ColumnAggregate {
			out[c.Name] = l.aggregate(out, table, c)
		}
	}

	// flexible columns resolve last, against everything above
	l.formulas(out, p, formulas, true)
	for _, c := range table.Cols {
		if c.Type == models.ColumnFlexible && c.EffectiveType() == models.ColumnAggregate {
			out[c.Name] = l.aggregate(out, table, c)
		}
	}
	return out
}

// typed reparses synced text through the column's declared type.
func typed(v models.Value, c models.Column) models.Value {
	if v.Kind == models.KindText {
		return models.ParseValue(v.Text, c)
	}
	return v
}

func (l *Linker) formulas(out models.LinkedRow, p *models.PathState, order []models.Column, flexible bool) {
	for _, c := range order {
		if (c.Type == models.ColumnFlexible) != flexible {
			continue
		}
		if l.eval == nil || c.Props.Formula == "" {
			out[c.Name] = models.Empty()
			continue
		}
		v, err := l.eval.Evaluate(c.Props.Formula, Scope{Row: out, Path: p, Source: l.src})
		if err != nil {
			l.logger.WithError(err).WithFields(logrus.Fields{
				"column":  c.Name,
				"formula": c.Props.Formula,
			}).Debug("Formula evaluation failed")
			v = models.Empty()
		}
		out[c.Name] = v
	}
}

// relation resolves the keys of the target table's rows this row relates
// to, in target table order.
func (l *Linker) relation(row models.Row, c models.Column) models.Value {
	target := l.src.Context(c.Props.Space)
	if target == nil || target.Table == nil {
		return models.List()
	}
	key := row.Key()

	var matched []models.Value
	if c.Props.Key != "" {
		backCol, ok := target.Table.Column(c.Props.Key)
		if !ok {
			return models.List()
		}
		for _, tr := range target.Table.Rows {
			for _, item := range models.ParseValue(tr[c.Props.Key], backCol).Items() {
				if item.String() == key {
					matched = append(matched, models.Text(tr.Key()))
					break
				}
			}
		}
		return models.List(matched...)
	}

	wanted := make(map[string]struct{})
	for _, item := range models.SplitList(row[c.Name]) {
		wanted[models.StripLink(item)] = struct{}{}
	}
	for _, tr := range target.Table.Rows {
		if _, ok := wanted[tr.Key()]; ok {
			matched = append(matched, models.Text(tr.Key()))
		}
	}
	return models.List(matched...)
}

// aggregate reduces a field of the rows reached through a relation column
// (Ref) or of a whole sibling table (Space).
func (l *Linker) aggregate(out models.LinkedRow, table *models.Table, c models.Column) models.Value {
	space := c.Props.Space
	var keys []string
	if c.Props.Ref != "" {
		rel, ok := table.Column(c.Props.Ref)
		if !ok {
			return models.Empty()
		}
		space = rel.Props.Space
		for _, item := range out[c.Props.Ref].Items() {
			keys = append(keys, item.String())
		}
	}
	target := l.src.Context(space)
	if target == nil || target.Table == nil {
		return models.Empty()
	}
	if c.Props.Ref == "" {
		keys = target.Table.Keys()
	}

	values := make([]models.Value, 0, len(keys))
	for _, k := range keys {
		values = append(values, l.targetValue(target, k, c.Props.Field))
	}
	fn := c.Props.Fn
	if fn == "" {
		fn = query.AggValues
	}
	v, err := query.Aggregate(fn, values)
	if err != nil {
		l.logger.WithError(err).WithField("column", c.Name).Debug("Aggregate failed")
		return models.Empty()
	}
	return v
}

func (l *Linker) targetValue(target *models.ContextState, key, field string) models.Value {
	if field == "" || field == models.KeyColumn {
		return models.Text(key)
	}
	if linked, ok := target.Linked[key]; ok {
		if v, ok := linked[field]; ok {
			return v
		}
	}
	col, ok := target.Table.Column(field)
	if !ok {
		if p := l.src.Path(key); p != nil {
			return query.PathRecord{State: p}.Value(field)
		}
		return models.Empty()
	}
	if i := target.Table.RowIndex(key); i >= 0 {
		return models.ParseValue(target.Table.Rows[i][field], col)
	}
	return models.Empty()
}
