// Package stats is the aggregation engine. Every statistic is a named
// operation that pushes grouping and bucketing down to the store; no
// statistic loads a whole collection into memory.
package stats

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

// ErrInvalidRange reports a period whose start lies after its end. It is
// returned before the store is contacted.
var ErrInvalidRange = errors.New("invalid period: start after end")

// Engine runs named statistics against a Store.
type Engine struct {
	st  store.Store
	log *zap.SugaredLogger
}

func New(st store.Store, log *zap.SugaredLogger) *Engine {
	return &Engine{st: st, log: log}
}

// GroupAverage is one group's means over the requested numeric fields.
// A mean is nil when no document in the group carried the field.
type GroupAverage struct {
	Key   any
	Count int64
	Means map[string]*float64
}

// RankEntry is one position of a ranking. Positions start at 1.
type RankEntry struct {
	Position int
	Key      any
	Mean     *float64
	Count    int64
}

// BucketCount is one bucket of a distribution. Overflow buckets carry the
// label "other".
type BucketCount struct {
	Label string
	Count int64
}

// GroupAverages computes the mean of the numeric fields per value of
// groupField, ordered by the first field's mean descending with an
// ascending tie-break on the group key.
func (e *Engine) GroupAverages(ctx context.Context, collection, groupField string, fields []string, filter store.Filter) ([]GroupAverage, error) {
	rows, err := e.st.GroupBy(ctx, collection, store.GroupQuery{
		Filter:   filter,
		GroupBy:  groupField,
		Averages: fields,
	})
	if err != nil {
		return nil, fmt.Errorf("group averages on %s.%s: %w", collection, groupField, err)
	}
	out := make([]GroupAverage, 0, len(rows))
	for _, row := range rows {
		means := make(map[string]*float64, len(fields))
		for _, f := range fields {
			means[f] = round1(row.Averages[f])
		}
		out = append(out, GroupAverage{Key: row.Key, Count: row.Count, Means: means})
	}
	return out, nil
}

// Ranking orders the values of groupField by their mean of field,
// descending, ties broken by ascending key. topN of 0 means unrestricted.
func (e *Engine) Ranking(ctx context.Context, collection, groupField, field string, topN int64, filter store.Filter) ([]RankEntry, error) {
	rows, err := e.st.GroupBy(ctx, collection, store.GroupQuery{
		Filter:   filter,
		GroupBy:  groupField,
		Averages: []string{field},
		Limit:    topN,
	})
	if err != nil {
		return nil, fmt.Errorf("ranking on %s.%s: %w", collection, groupField, err)
	}
	out := make([]RankEntry, 0, len(rows))
	for i, row := range rows {
		out = append(out, RankEntry{
			Position: i + 1,
			Key:      row.Key,
			Mean:     round1(row.Averages[field]),
			Count:    row.Count,
		})
	}
	return out, nil
}

// Distribution buckets field into the given ascending boundaries. Every
// bucket appears in the output, zero-count ones included; documents
// outside the boundaries or missing the field land in the trailing
// "other" bucket. labels may be nil, in which case "lo-hi" labels are
// generated from the boundaries.
func (e *Engine) Distribution(ctx context.Context, collection, field string, boundaries []float64, labels []string, filter store.Filter) ([]BucketCount, error) {
	rows, err := e.st.Bucket(ctx, collection, store.BucketQuery{
		Filter:     filter,
		Field:      field,
		Boundaries: boundaries,
	})
	if err != nil {
		return nil, fmt.Errorf("distribution of %s.%s: %w", collection, field, err)
	}

	counts := make(map[float64]int64, len(rows))
	var overflow int64
	for _, row := range rows {
		if row.Overflow {
			overflow += row.Count
			continue
		}
		counts[row.Lower] = row.Count
	}

	out := make([]BucketCount, 0, len(boundaries))
	for i := 0; i+1 < len(boundaries); i++ {
		label := fmt.Sprintf("%g-%g", boundaries[i], boundaries[i+1])
		if labels != nil {
			label = labels[i]
		}
		out = append(out, BucketCount{Label: label, Count: counts[boundaries[i]]})
	}
	if overflow > 0 {
		out = append(out, BucketCount{Label: "other", Count: overflow})
	}
	return out, nil
}

// Threshold fills dest with the documents whose field is at least cutoff,
// ordered by that field descending. An empty result is not an error.
func (e *Engine) Threshold(ctx context.Context, collection, field string, cutoff float64, limit int64, dest any) error {
	opts := store.FindOptions{SortField: field, SortDesc: true, Limit: limit}
	filter := store.Filter{store.AtLeast(field, cutoff)}
	if err := e.st.FindMany(ctx, collection, filter, opts, dest); err != nil {
		return fmt.Errorf("threshold %s.%s >= %v: %w", collection, field, cutoff, err)
	}
	return nil
}

// periodCond validates the closed year interval and builds its condition.
// Validation happens before any store call.
func periodCond(yearField string, start, end int) (store.Cond, error) {
	if start > end {
		return store.Cond{}, fmt.Errorf("%w: %d-%d", ErrInvalidRange, start, end)
	}
	return store.Between(yearField, start, end), nil
}

// PeriodGroupAverages is GroupAverages restricted to an inclusive year
// interval.
func (e *Engine) PeriodGroupAverages(ctx context.Context, collection, yearField string, start, end int, groupField string, fields []string) ([]GroupAverage, error) {
	cond, err := periodCond(yearField, start, end)
	if err != nil {
		return nil, err
	}
	return e.GroupAverages(ctx, collection, groupField, fields, store.Filter{cond})
}

// round1 applies the reporting rounding rule, preserving nil.
func round1(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := models.Round1(*v)
	return &r
}
