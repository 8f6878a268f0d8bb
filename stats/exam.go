package stats

import (
	"context"
	"fmt"
	"sort"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

// essayBoundaries bucket the essay score in 200-point steps. The top
// boundary is exclusive, so 1001 keeps the perfect score of 1000 inside
// the last bucket instead of the overflow.
var (
	essayBoundaries = []float64{0, 200, 400, 600, 800, 1001}
	essayLabels     = []string{"0-199", "200-399", "400-599", "600-799", "800-1000"}
)

// AreaStat is the mean and contributing count for one knowledge area.
type AreaStat struct {
	Mean  *float64
	Count int64
}

// AreaReport aggregates all results into per-area means.
type AreaReport struct {
	Total int64
	Areas map[string]AreaStat
	Essay AreaStat
}

// yearFilter builds the optional exam-year restriction; 0 means all years.
func yearFilter(year int) store.Filter {
	if year == 0 {
		return nil
	}
	return store.Filter{store.Eq("year", year)}
}

// AreaAverages computes the mean score per knowledge area plus the essay,
// with the count of participants who actually sat each test.
func (e *Engine) AreaAverages(ctx context.Context, year int) (*AreaReport, error) {
	fields := make([]string, 0, len(models.KnowledgeAreas)+1)
	for _, area := range models.KnowledgeAreas {
		fields = append(fields, "scores."+area)
	}
	fields = append(fields, "essay_score")

	rows, err := e.st.GroupBy(ctx, models.CollectionResults, store.GroupQuery{
		Filter:        yearFilter(year),
		Averages:      fields,
		NonNullCounts: fields,
	})
	if err != nil {
		return nil, fmt.Errorf("area averages: %w", err)
	}

	report := &AreaReport{Areas: make(map[string]AreaStat, len(models.KnowledgeAreas))}
	if len(rows) == 0 {
		return report, nil
	}
	row := rows[0]
	report.Total = row.Count
	for _, area := range models.KnowledgeAreas {
		f := "scores." + area
		report.Areas[area] = AreaStat{Mean: round1(row.Averages[f]), Count: row.NonNull[f]}
	}
	report.Essay = AreaStat{Mean: round1(row.Averages["essay_score"]), Count: row.NonNull["essay_score"]}
	return report, nil
}

// StateRanking ranks states by mean objective average, descending, ties
// broken by ascending state code. topN of 0 returns every state.
func (e *Engine) StateRanking(ctx context.Context, year int, topN int64) ([]RankEntry, error) {
	return e.Ranking(ctx, models.CollectionResults, "exam_state", "average", topN, yearFilter(year))
}

// EssayDistribution buckets essay scores in 200-point ranges. Every range
// appears even when empty; absent essays count under "other".
func (e *Engine) EssayDistribution(ctx context.Context, year int) ([]BucketCount, error) {
	return e.Distribution(ctx, models.CollectionResults, "essay_score",
		essayBoundaries, essayLabels, yearFilter(year))
}

// TopPerformers returns the results whose objective average is at least
// cutoff, best first.
func (e *Engine) TopPerformers(ctx context.Context, cutoff float64, limit int64) ([]models.Result, error) {
	var out []models.Result
	if err := e.Threshold(ctx, models.CollectionResults, "average", cutoff, limit, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SchoolRanking ranks schools by the mean objective average of their
// results. Results without a school reference do not participate. topN
// of 0 returns every school.
func (e *Engine) SchoolRanking(ctx context.Context, year int, topN int64) ([]RankEntry, error) {
	rows, err := e.st.GroupBy(ctx, models.CollectionResults, store.GroupQuery{
		Filter:   yearFilter(year),
		GroupBy:  "school_code",
		Averages: []string{"average"},
	})
	if err != nil {
		return nil, fmt.Errorf("school ranking: %w", err)
	}
	out := make([]RankEntry, 0, len(rows))
	for _, row := range rows {
		if row.Key == nil {
			continue
		}
		out = append(out, RankEntry{
			Position: len(out) + 1,
			Key:      row.Key,
			Mean:     round1(row.Averages["average"]),
			Count:    row.Count,
		})
		if topN > 0 && int64(len(out)) == topN {
			break
		}
	}
	return out, nil
}

// PeriodResults returns the results whose exam year falls inside the
// inclusive interval, oldest first. The interval is validated before the
// store is contacted.
func (e *Engine) PeriodResults(ctx context.Context, start, end int, skip, limit int64) ([]models.Result, error) {
	cond, err := periodCond("year", start, end)
	if err != nil {
		return nil, err
	}
	var out []models.Result
	opts := store.FindOptions{SortField: "year", Skip: skip, Limit: limit}
	if err := e.st.FindMany(ctx, models.CollectionResults, store.Filter{cond}, opts, &out); err != nil {
		return nil, fmt.Errorf("results %d-%d: %w", start, end, err)
	}
	return out, nil
}

// DemographicRow is one categorical value of a participant breakdown.
type DemographicRow struct {
	Value    any
	Count    int64
	Trainees int64
}

// Demographics counts participants per value of a categorical field
// (sex, race, age_band), with the trainee sub-count per value.
func (e *Engine) Demographics(ctx context.Context, field string, year int) ([]DemographicRow, error) {
	rows, err := e.st.GroupBy(ctx, models.CollectionParticipants, store.GroupQuery{
		Filter:     yearFilter(year),
		GroupBy:    field,
		TrueCounts: []string{"trainee"},
	})
	if err != nil {
		return nil, fmt.Errorf("demographics by %s: %w", field, err)
	}
	out := make([]DemographicRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, DemographicRow{
			Value:    row.Key,
			Count:    row.Count,
			Trainees: row.True["trainee"],
		})
	}
	return out, nil
}

// RegionStats groups municipalities by region with population and HDI
// means. Regions missing enrichment data report nil means.
func (e *Engine) RegionStats(ctx context.Context) ([]GroupAverage, error) {
	return e.GroupAverages(ctx, models.CollectionMunicipalities, "region",
		[]string{"population", "hdi"}, nil)
}

// SchoolDependencyStats groups schools by administrative dependency,
// averaging the participant counters. state narrows to one state; empty
// means nationwide.
func (e *Engine) SchoolDependencyStats(ctx context.Context, state string) ([]GroupAverage, error) {
	var filter store.Filter
	if state != "" {
		filter = store.Filter{store.Eq("state", state)}
	}
	return e.GroupAverages(ctx, models.CollectionSchools, "admin_dependency",
		[]string{"total_participants"}, filter)
}

// PeriodAreaAverages computes per-year knowledge-area means over an
// inclusive year interval.
func (e *Engine) PeriodAreaAverages(ctx context.Context, start, end int) ([]GroupAverage, error) {
	fields := make([]string, 0, len(models.KnowledgeAreas)+1)
	for _, area := range models.KnowledgeAreas {
		fields = append(fields, "scores."+area)
	}
	fields = append(fields, "essay_score")
	rows, err := e.PeriodGroupAverages(ctx, models.CollectionResults, "year", start, end, "year", fields)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		return keyNum(rows[i].Key) < keyNum(rows[j].Key)
	})
	return rows, nil
}

func keyNum(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
