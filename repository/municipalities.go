package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

// MunicipalityFilter is the closed set of list criteria for municipalities.
// Zero values mean "any".
type MunicipalityFilter struct {
	State         string
	Region        string
	MinPopulation *int64
}

func (f MunicipalityFilter) conds() store.Filter {
	var out store.Filter
	if f.State != "" {
		out = append(out, store.Eq("state", f.State))
	}
	if f.Region != "" {
		out = append(out, store.Eq("region", f.Region))
	}
	if f.MinPopulation != nil {
		out = append(out, store.AtLeast("population", *f.MinPopulation))
	}
	return out
}

// Municipalities is the repository for municipality documents.
type Municipalities struct {
	st      store.Store
	log     *zap.SugaredLogger
	maxPage int64
}

func NewMunicipalities(st store.Store, log *zap.SugaredLogger, maxPage int64) *Municipalities {
	st.RegisterNaturalKey(models.CollectionMunicipalities, "code")
	return &Municipalities{st: st, log: log, maxPage: maxPage}
}

func (r *Municipalities) Create(ctx context.Context, m *models.Municipality) (string, error) {
	m.Touch(time.Now().UTC())
	id, err := r.st.Insert(ctx, models.CollectionMunicipalities, m)
	if err != nil {
		return "", fmt.Errorf("create municipality %d: %w", m.Code, err)
	}
	return id, nil
}

func (r *Municipalities) Get(ctx context.Context, id string) (*models.Municipality, error) {
	f, ok := idFilter(id)
	if !ok {
		return nil, fmt.Errorf("municipality %q: %w", id, store.ErrNotFound)
	}
	var m models.Municipality
	if err := r.st.FindOne(ctx, models.CollectionMunicipalities, f, &m); err != nil {
		return nil, fmt.Errorf("municipality %q: %w", id, err)
	}
	return &m, nil
}

func (r *Municipalities) GetByCode(ctx context.Context, code int) (*models.Municipality, error) {
	var m models.Municipality
	f := store.Filter{store.Eq("code", code)}
	if err := r.st.FindOne(ctx, models.CollectionMunicipalities, f, &m); err != nil {
		return nil, fmt.Errorf("municipality code %d: %w", code, err)
	}
	return &m, nil
}

func (r *Municipalities) Update(ctx context.Context, id string, patch map[string]any) (bool, error) {
	return r.st.Update(ctx, models.CollectionMunicipalities, id, patch)
}

func (r *Municipalities) Delete(ctx context.Context, id string) (bool, error) {
	return r.st.Delete(ctx, models.CollectionMunicipalities, id)
}

// List returns one page of municipalities plus the total match count.
// A skip past the end yields an empty page, not an error.
func (r *Municipalities) List(ctx context.Context, f MunicipalityFilter, page Page) ([]models.Municipality, int64, error) {
	conds := f.conds()
	total, err := r.st.Count(ctx, models.CollectionMunicipalities, conds)
	if err != nil {
		return nil, 0, fmt.Errorf("count municipalities: %w", err)
	}
	var items []models.Municipality
	if err := r.st.FindMany(ctx, models.CollectionMunicipalities, conds, page.options(r.maxPage), &items); err != nil {
		return nil, 0, fmt.Errorf("list municipalities: %w", err)
	}
	return items, total, nil
}
