package query

import (
	"sort"
	"strings"

	"github.com/grovetools/superstate/pkg/models"
)

// Sort orders records by keys. Each key breaks ties left by the previous
// one; records equal on every key keep their input order.
func Sort(recs []Record, keys []models.SortKey, types Types) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, k := range keys {
			a, b := recs[i].Value(k.Field), recs[j].Value(k.Field)
			t := types.of(k.Field, a)
			if a.IsEmpty() {
				t = types.of(k.Field, b)
			}
			c := Compare(a, b, t)
			if c == 0 {
				continue
			}
			// empty values stay last in both directions
			if a.IsEmpty() || b.IsEmpty() {
				return c < 0
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Compare orders two values of the given column type. Empty values order
// after everything else.
func Compare(a, b models.Value, t models.ColumnType) int {
	ae, be := a.IsEmpty(), b.IsEmpty()
	switch {
	case ae && be:
		return 0
	case ae:
		return 1
	case be:
		return -1
	}
	a, b = coerce(a, t), coerce(b, t)

	switch t {
	case models.ColumnNumber, models.ColumnAggregate:
		if a.Kind == models.KindNumber && b.Kind == models.KindNumber {
			return compareFloat(a.Number, b.Number)
		}
	case models.ColumnDate:
		if a.Kind == models.KindDate && b.Kind == models.KindDate {
			switch {
			case a.Date.Before(b.Date):
				return -1
			case a.Date.After(b.Date):
				return 1
			}
			return 0
		}
	case models.ColumnBoolean:
		ab, bb := truthy(a), truthy(b)
		if ab != bb {
			if !ab {
				return -1
			}
			return 1
		}
	}
	return compareText(a.String(), b.String())
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareText(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Run filters recs by the view and sorts the survivors. The input slice is
// not modified.
func Run(recs []Record, view models.View, types Types) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if Match(view.Filters, r, types) {
			out = append(out, r)
		}
	}
	Sort(out, view.Sort, types)
	if view.Limit > 0 && len(out) > view.Limit {
		out = out[:view.Limit]
	}
	return out
}
