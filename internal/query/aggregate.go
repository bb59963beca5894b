package query

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/grovetools/superstate/pkg/models"
)

// Aggregate function names.
const (
	AggSum             = "sum"
	AggAvg             = "avg"
	AggMin             = "min"
	AggMax             = "max"
	AggMedian          = "median"
	AggRange           = "range"
	AggCount           = "count"
	AggCountUnique     = "count_unique"
	AggCountEmpty      = "count_empty"
	AggCountNotEmpty   = "count_not_empty"
	AggPercentComplete = "percent_complete"
	AggEarliest        = "earliest"
	AggLatest          = "latest"
	AggDateRange       = "date_range"
	AggValues          = "values"
)

// Aggregate reduces values with fn. List values are flattened first so a
// relation that yields several items per row contributes each item.
// The result depends only on the input order, never on map iteration.
func Aggregate(fn string, values []models.Value) (models.Value, error) {
	var flat []models.Value
	empties := 0
	for _, v := range values {
		if v.IsEmpty() {
			empties++
			continue
		}
		flat = append(flat, v.Items()...)
	}

	switch fn {
	case AggCount:
		return models.Number(float64(len(values))), nil
	case AggCountEmpty:
		return models.Number(float64(empties)), nil
	case AggCountNotEmpty:
		return models.Number(float64(len(values) - empties)), nil
	case AggCountUnique:
		return models.Number(float64(len(unique(flat)))), nil
	case AggValues:
		return models.List(unique(flat)...), nil
	case AggPercentComplete:
		if len(values) == 0 {
			return models.Number(0), nil
		}
		done := 0
		for _, v := range values {
			if truthy(coerce(v, models.ColumnBoolean)) {
				done++
			}
		}
		return models.Number(math.Round(float64(done) / float64(len(values)) * 100)), nil
	case AggSum, AggAvg, AggMin, AggMax, AggMedian, AggRange:
		return numeric(fn, flat), nil
	case AggEarliest, AggLatest, AggDateRange:
		return dates(fn, flat), nil
	}
	return models.Empty(), fmt.Errorf("unknown aggregate function %q", fn)
}

func unique(values []models.Value) []models.Value {
	seen := make(map[string]struct{}, len(values))
	var out []models.Value
	for _, v := range values {
		key := v.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func numeric(fn string, values []models.Value) models.Value {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if n := coerce(v, models.ColumnNumber); n.Kind == models.KindNumber {
			nums = append(nums, n.Number)
		}
	}
	if fn == AggSum {
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return models.Number(total)
	}
	if len(nums) == 0 {
		return models.Empty()
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	switch fn {
	case AggAvg:
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return models.Number(total / float64(len(nums)))
	case AggMin:
		return models.Number(sorted[0])
	case AggMax:
		return models.Number(sorted[len(sorted)-1])
	case AggRange:
		return models.Number(sorted[len(sorted)-1] - sorted[0])
	case AggMedian:
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return models.Number((sorted[mid-1] + sorted[mid]) / 2)
		}
		return models.Number(sorted[mid])
	}
	return models.Empty()
}

func dates(fn string, values []models.Value) models.Value {
	var ds []time.Time
	for _, v := range values {
		if d := coerce(v, models.ColumnDate); d.Kind == models.KindDate {
			ds = append(ds, d.Date)
		}
	}
	if len(ds) == 0 {
		return models.Empty()
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
	switch fn {
	case AggEarliest:
		return models.Date(ds[0])
	case AggLatest:
		return models.Date(ds[len(ds)-1])
	}
	return models.Text(models.FormatDate(ds[0]) + "/" + models.FormatDate(ds[len(ds)-1]))
}
