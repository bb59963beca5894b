// Package query evaluates filter groups, sort keys and aggregates over
// typed records.
package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/grovetools/superstate/pkg/models"
)

// Record exposes field values to the evaluator.
type Record interface {
	Value(field string) models.Value
}

// Types maps field names to declared column types. Fields missing from the
// map are typed from the shape of their value.
type Types map[string]models.ColumnType

func (t Types) of(field string, v models.Value) models.ColumnType {
	if ct, ok := t[field]; ok {
		return ct
	}
	switch v.Kind {
	case models.KindNumber:
		return models.ColumnNumber
	case models.KindBool:
		return models.ColumnBoolean
	case models.KindDate:
		return models.ColumnDate
	case models.KindList:
		return models.ColumnOption
	}
	return models.ColumnText
}

// Filter operator names.
const (
	FnContains    = "contains"
	FnNotContains = "not_contains"
	FnIs          = "is"
	FnIsNot       = "is_not"
	FnStartsWith  = "starts_with"
	FnEndsWith    = "ends_with"
	FnGlob        = "glob"
	FnEq          = "eq"
	FnGt          = "gt"
	FnGte         = "gte"
	FnLt          = "lt"
	FnLte         = "lte"
	FnBefore      = "before"
	FnAfter       = "after"
	FnSameDay     = "same_day"
	FnAnyOf       = "any_of"
	FnNoneOf      = "none_of"
	FnAllOf       = "all_of"
	FnChecked     = "checked"
	FnUnchecked   = "unchecked"
	FnIsEmpty     = "is_empty"
	FnIsNotEmpty  = "is_not_empty"
)

var knownFns = map[string]bool{
	FnContains: true, FnNotContains: true, FnIs: true, FnIsNot: true,
	FnStartsWith: true, FnEndsWith: true, FnGlob: true, FnEq: true,
	FnGt: true, FnGte: true, FnLt: true, FnLte: true,
	FnBefore: true, FnAfter: true, FnSameDay: true,
	FnAnyOf: true, FnNoneOf: true, FnAllOf: true,
	FnChecked: true, FnUnchecked: true, FnIsEmpty: true, FnIsNotEmpty: true,
}

// KnownFn reports whether fn names a filter operator.
func KnownFn(fn string) bool {
	return knownFns[fn]
}

// Match reports whether rec satisfies every (all) or some (any) member of
// the group. An empty group matches.
func Match(g models.FilterGroup, rec Record, types Types) bool {
	if g.IsEmpty() {
		return true
	}
	anyOf := g.Type == models.GroupAny
	for _, f := range g.Filters {
		v := rec.Value(f.Field)
		ok := Evaluate(f, v, types.of(f.Field, v))
		if anyOf && ok {
			return true
		}
		if !anyOf && !ok {
			return false
		}
	}
	for _, sub := range g.Groups {
		if sub.IsEmpty() {
			continue
		}
		ok := Match(sub, rec, types)
		if anyOf && ok {
			return true
		}
		if !anyOf && !ok {
			return false
		}
	}
	return !anyOf
}

// Evaluate applies one filter to a value of the given column type.
// Unknown operators never match.
func Evaluate(f models.Filter, v models.Value, t models.ColumnType) bool {
	v = coerce(v, t)
	switch f.Fn {
	case FnIsEmpty:
		return v.IsEmpty()
	case FnIsNotEmpty:
		return !v.IsEmpty()
	case FnChecked:
		return truthy(v)
	case FnUnchecked:
		return !truthy(v)
	case FnContains:
		return anyItem(v, func(s string) bool { return containsFold(s, f.Value) })
	case FnNotContains:
		return !anyItem(v, func(s string) bool { return containsFold(s, f.Value) })
	case FnIs:
		return isEqual(v, f.Value, t)
	case FnIsNot:
		return !isEqual(v, f.Value, t)
	case FnStartsWith:
		return anyItem(v, func(s string) bool {
			return strings.HasPrefix(strings.ToLower(s), strings.ToLower(f.Value))
		})
	case FnEndsWith:
		return anyItem(v, func(s string) bool {
			return strings.HasSuffix(strings.ToLower(s), strings.ToLower(f.Value))
		})
	case FnGlob:
		return anyItem(v, func(s string) bool {
			ok, err := doublestar.Match(f.Value, s)
			return err == nil && ok
		})
	case FnEq, FnGt, FnGte, FnLt, FnLte:
		return compareNumber(f.Fn, v, f.Value)
	case FnBefore, FnAfter, FnSameDay:
		return compareDate(f.Fn, v, f.Value)
	case FnAnyOf, FnNoneOf, FnAllOf:
		return compareSet(f.Fn, v, f.Value)
	}
	return false
}

// coerce parses text values into the declared column type.
func coerce(v models.Value, t models.ColumnType) models.Value {
	if v.Kind != models.KindText {
		return v
	}
	switch t {
	case models.ColumnNumber:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64); err == nil {
			return models.Number(n)
		}
	case models.ColumnDate:
		if d, ok := models.ParseDate(v.Text); ok {
			return models.Date(d)
		}
	case models.ColumnBoolean:
		if b, ok := models.ParseBool(v.Text); ok {
			return models.Bool(b)
		}
	}
	return v
}

func truthy(v models.Value) bool {
	switch v.Kind {
	case models.KindBool:
		return v.Bool
	case models.KindText:
		b, _ := models.ParseBool(v.Text)
		return b
	case models.KindNumber:
		return v.Number != 0
	}
	return false
}

func anyItem(v models.Value, pred func(string) bool) bool {
	items := v.Items()
	if len(items) == 0 {
		return pred("")
	}
	for _, item := range items {
		if pred(item.String()) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func isEqual(v models.Value, want string, t models.ColumnType) bool {
	switch t {
	case models.ColumnNumber:
		return compareNumber(FnEq, v, want)
	case models.ColumnDate:
		return compareDate(FnSameDay, v, want)
	case models.ColumnBoolean:
		b, ok := models.ParseBool(want)
		return ok && truthy(v) == b
	}
	if v.Kind == models.KindList {
		return anyItem(v, func(s string) bool { return strings.EqualFold(s, want) })
	}
	return strings.EqualFold(v.String(), want)
}

func compareNumber(fn string, v models.Value, raw string) bool {
	want, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v.Kind != models.KindNumber {
		return false
	}
	switch fn {
	case FnEq:
		return v.Number == want
	case FnGt:
		return v.Number > want
	case FnGte:
		return v.Number >= want
	case FnLt:
		return v.Number < want
	case FnLte:
		return v.Number <= want
	}
	return false
}

func compareDate(fn string, v models.Value, raw string) bool {
	want, ok := models.ParseDate(raw)
	if !ok || v.Kind != models.KindDate {
		return false
	}
	switch fn {
	case FnBefore:
		return v.Date.Before(want)
	case FnAfter:
		return v.Date.After(want)
	case FnSameDay:
		return sameDay(v.Date, want)
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func compareSet(fn string, v models.Value, raw string) bool {
	want := models.SplitList(raw)
	have := make(map[string]struct{})
	for _, item := range v.Items() {
		have[strings.ToLower(item.String())] = struct{}{}
	}
	hits := 0
	for _, w := range want {
		if _, ok := have[strings.ToLower(w)]; ok {
			hits++
		}
	}
	switch fn {
	case FnAnyOf:
		return hits > 0
	case FnNoneOf:
		return hits == 0
	case FnAllOf:
		return len(want) > 0 && hits == len(want)
	}
	return false
}
