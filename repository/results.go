package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

// ResultFilter is the closed set of list criteria for results.
type ResultFilter struct {
	Year         int
	ExamState    string
	Registration string
	SchoolCode   *int
	MinAverage   *float64
	MaxAverage   *float64
}

func (f ResultFilter) conds() store.Filter {
	var out store.Filter
	if f.Year != 0 {
		out = append(out, store.Eq("year", f.Year))
	}
	if f.ExamState != "" {
		out = append(out, store.Eq("exam_state", f.ExamState))
	}
	if f.Registration != "" {
		out = append(out, store.Eq("registration", f.Registration))
	}
	if f.SchoolCode != nil {
		out = append(out, store.Eq("school_code", *f.SchoolCode))
	}
	if f.MinAverage != nil || f.MaxAverage != nil {
		var min, max any
		if f.MinAverage != nil {
			min = *f.MinAverage
		}
		if f.MaxAverage != nil {
			max = *f.MaxAverage
		}
		out = append(out, store.Between("average", min, max))
	}
	return out
}

// Results is the repository for per-year result documents.
type Results struct {
	st      store.Store
	log     *zap.SugaredLogger
	maxPage int64
}

func NewResults(st store.Store, log *zap.SugaredLogger, maxPage int64) *Results {
	st.RegisterNaturalKey(models.CollectionResults, "registration", "year")
	return &Results{st: st, log: log, maxPage: maxPage}
}

// Create recomputes the derived objective average before writing. The
// input value of Average is never trusted.
func (r *Results) Create(ctx context.Context, res *models.Result) (string, error) {
	res.RecomputeAverage()
	res.Touch(time.Now().UTC())
	id, err := r.st.Insert(ctx, models.CollectionResults, res)
	if err != nil {
		return "", fmt.Errorf("create result %s/%d: %w", res.Registration, res.Year, err)
	}
	return id, nil
}

func (r *Results) Get(ctx context.Context, id string) (*models.Result, error) {
	f, ok := idFilter(id)
	if !ok {
		return nil, fmt.Errorf("result %q: %w", id, store.ErrNotFound)
	}
	var res models.Result
	if err := r.st.FindOne(ctx, models.CollectionResults, f, &res); err != nil {
		return nil, fmt.Errorf("result %q: %w", id, err)
	}
	return &res, nil
}

// GetByKey looks a result up by its (registration, year) natural key.
func (r *Results) GetByKey(ctx context.Context, registration string, year int) (*models.Result, error) {
	var res models.Result
	f := store.Filter{store.Eq("registration", registration), store.Eq("year", year)}
	if err := r.st.FindOne(ctx, models.CollectionResults, f, &res); err != nil {
		return nil, fmt.Errorf("result %s/%d: %w", registration, year, err)
	}
	return &res, nil
}

// Update applies a patch. When the patch replaces the scores map the
// derived average is recomputed from the new scores, never taken from
// the patch itself.
func (r *Results) Update(ctx context.Context, id string, patch map[string]any) (bool, error) {
	if raw, ok := patch["scores"]; ok {
		scores, err := patchScores(raw)
		if err != nil {
			return false, fmt.Errorf("update result %q: %w", id, err)
		}
		patch["scores"] = scores
		tmp := models.Result{Scores: scores}
		tmp.RecomputeAverage()
		if tmp.Average != nil {
			patch["average"] = *tmp.Average
		} else {
			patch["average"] = nil
		}
	} else {
		delete(patch, "average")
	}
	return r.st.Update(ctx, models.CollectionResults, id, patch)
}

// patchScores normalizes the score map a caller may hand in. Decoded
// input often arrives as map[string]any with assorted numeric types.
func patchScores(raw any) (map[string]float64, error) {
	switch m := raw.(type) {
	case map[string]float64:
		return m, nil
	case map[string]any:
		out := make(map[string]float64, len(m))
		for area, v := range m {
			switch n := v.(type) {
			case float64:
				out[area] = n
			case float32:
				out[area] = float64(n)
			case int:
				out[area] = float64(n)
			case int32:
				out[area] = float64(n)
			case int64:
				out[area] = float64(n)
			default:
				return nil, fmt.Errorf("score %s is not numeric (%T)", area, v)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("scores patch must be a map, got %T", raw)
	}
}

func (r *Results) Delete(ctx context.Context, id string) (bool, error) {
	return r.st.Delete(ctx, models.CollectionResults, id)
}

func (r *Results) List(ctx context.Context, f ResultFilter, page Page) ([]models.Result, int64, error) {
	conds := f.conds()
	total, err := r.st.Count(ctx, models.CollectionResults, conds)
	if err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}
	var items []models.Result
	if err := r.st.FindMany(ctx, models.CollectionResults, conds, page.options(r.maxPage), &items); err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	return items, total, nil
}

// ByParticipant returns a participant's results across years, oldest first.
func (r *Results) ByParticipant(ctx context.Context, registration string) ([]models.Result, error) {
	var items []models.Result
	f := store.Filter{store.Eq("registration", registration)}
	opts := store.FindOptions{SortField: "year"}
	if err := r.st.FindMany(ctx, models.CollectionResults, f, opts, &items); err != nil {
		return nil, fmt.Errorf("results for %s: %w", registration, err)
	}
	return items, nil
}
