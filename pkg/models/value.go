package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueKind is the closed set of shapes a cell value can take.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindText
	KindNumber
	KindBool
	KindDate
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindList:
		return "list"
	}
	return "empty"
}

// Value is a typed cell value. Only the field matching Kind is meaningful.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bool   bool
	Date   time.Time
	List   []Value
}

// ListSeparator joins list items in a stored row value.
const ListSeparator = ", "

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func Empty() Value { return Value{} }
func Text(s string) Value { return Value{Kind: KindText, Text: s} }
func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func Date(t time.Time) Value { return Value{Kind: KindDate, Date: t.UTC()} }
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }

// IsEmpty reports whether the value carries nothing. Empty text and
// empty lists count as empty.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindEmpty:
		return true
	case KindText:
		return v.Text == ""
	case KindList:
		return len(v.List) == 0
	}
	return false
}

// String renders the value deterministically. It is also the stored form.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return FormatNumber(v.Number)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindDate:
		return FormatDate(v.Date)
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.String()
		}
		return strings.Join(parts, ListSeparator)
	}
	return ""
}

// Items returns the value as a list; scalars become a one-item list.
func (v Value) Items() []Value {
	switch v.Kind {
	case KindList:
		return v.List
	case KindEmpty:
		return nil
	}
	if v.IsEmpty() {
		return nil
	}
	return []Value{v}
}

// Equal compares two values by kind and rendered form.
func (v Value) Equal(o Value) bool {
	return v.Kind == o.Kind && v.String() == o.String()
}

// Native converts the value to plain Go types for expression scopes.
func (v Value) Native() interface{} {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return v.Number
	case KindBool:
		return v.Bool
	case KindDate:
		return v.Date
	case KindList:
		out := make([]interface{}, len(v.List))
		for i, item := range v.List {
			out[i] = item.Native()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes the native form; dates use the stored layout.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindDate {
		return json.Marshal(FormatDate(v.Date))
	}
	if v.Kind == KindNumber && (math.IsNaN(v.Number) || math.IsInf(v.Number, 0)) {
		return json.Marshal(nil)
	}
	return json.Marshal(v.Native())
}

// FromNative converts an arbitrary Go value (metadata, evaluator output).
func FromNative(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Empty()
	case Value:
		return t
	case string:
		return Text(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case time.Time:
		return Date(t)
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = Text(s)
		}
		return List(items...)
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromNative(e)
		}
		return List(items...)
	case []Value:
		return List(t...)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + FromNative(t[k]).String()
		}
		return Text(strings.Join(parts, ListSeparator))
	}
	return Text(fmt.Sprint(x))
}

// ParseValue decodes a stored raw value according to the column type.
// Values that do not parse as the declared type are kept as text.
func ParseValue(raw string, col Column) Value {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Empty()
	}
	switch col.EffectiveType() {
	case ColumnNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return Number(f)
		}
	case ColumnBoolean:
		if b, ok := ParseBool(raw); ok {
			return Bool(b)
		}
	case ColumnDate:
		if t, ok := ParseDate(raw); ok {
			return Date(t)
		}
	case ColumnLink, ColumnRelation:
		if col.Primary {
			return Text(raw)
		}
		items := SplitList(raw)
		values := make([]Value, len(items))
		for i, item := range items {
			values[i] = Text(StripLink(item))
		}
		if len(values) == 1 && !col.Props.Multi && col.Type == ColumnLink {
			return values[0]
		}
		return List(values...)
	case ColumnOption:
		if !col.Props.Multi {
			return Text(raw)
		}
		items := SplitList(raw)
		values := make([]Value, len(items))
		for i, item := range items {
			values[i] = Text(item)
		}
		return List(values...)
	}
	return Text(raw)
}

// SplitList splits a stored list value, dropping empty items.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinList renders items in the stored list form.
func JoinList(items []string) string {
	return strings.Join(items, ListSeparator)
}

// StripLink removes wiki link brackets: "[[a.md]]" becomes "a.md".
func StripLink(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[[") && strings.HasSuffix(s, "]]") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "[["), "]]")
		if i := strings.Index(s, "|"); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

// ParseBool accepts true/false, yes/no, 1/0 and checked/unchecked.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "checked", "x":
		return true, true
	case "false", "no", "0", "unchecked", "":
		return false, true
	}
	return false, false
}

// ParseDate tries the supported date layouts in order.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatDate renders midnight dates without a time part.
func FormatDate(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// FormatNumber renders integers without a fraction and other numbers in
// their shortest exact form.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
