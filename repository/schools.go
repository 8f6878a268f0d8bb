package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

// SchoolFilter is the closed set of list criteria for schools. Zero values
// mean "any".
type SchoolFilter struct {
	State            string
	MunicipalityCode int
	AdminDependency  int
	Location         int
}

func (f SchoolFilter) conds() store.Filter {
	var out store.Filter
	if f.State != "" {
		out = append(out, store.Eq("state", f.State))
	}
	if f.MunicipalityCode != 0 {
		out = append(out, store.Eq("municipality_code", f.MunicipalityCode))
	}
	if f.AdminDependency != 0 {
		out = append(out, store.Eq("admin_dependency", f.AdminDependency))
	}
	if f.Location != 0 {
		out = append(out, store.Eq("location", f.Location))
	}
	return out
}

// Schools is the repository for school documents.
type Schools struct {
	st      store.Store
	log     *zap.SugaredLogger
	maxPage int64
}

func NewSchools(st store.Store, log *zap.SugaredLogger, maxPage int64) *Schools {
	st.RegisterNaturalKey(models.CollectionSchools, "code")
	return &Schools{st: st, log: log, maxPage: maxPage}
}

func (r *Schools) Create(ctx context.Context, s *models.School) (string, error) {
	s.Touch(time.Now().UTC())
	id, err := r.st.Insert(ctx, models.CollectionSchools, s)
	if err != nil {
		return "", fmt.Errorf("create school %d: %w", s.Code, err)
	}
	return id, nil
}

func (r *Schools) Get(ctx context.Context, id string) (*models.School, error) {
	f, ok := idFilter(id)
	if !ok {
		return nil, fmt.Errorf("school %q: %w", id, store.ErrNotFound)
	}
	var s models.School
	if err := r.st.FindOne(ctx, models.CollectionSchools, f, &s); err != nil {
		return nil, fmt.Errorf("school %q: %w", id, err)
	}
	return &s, nil
}

func (r *Schools) GetByCode(ctx context.Context, code int) (*models.School, error) {
	var s models.School
	f := store.Filter{store.Eq("code", code)}
	if err := r.st.FindOne(ctx, models.CollectionSchools, f, &s); err != nil {
		return nil, fmt.Errorf("school code %d: %w", code, err)
	}
	return &s, nil
}

func (r *Schools) Update(ctx context.Context, id string, patch map[string]any) (bool, error) {
	return r.st.Update(ctx, models.CollectionSchools, id, patch)
}

func (r *Schools) Delete(ctx context.Context, id string) (bool, error) {
	return r.st.Delete(ctx, models.CollectionSchools, id)
}

func (r *Schools) List(ctx context.Context, f SchoolFilter, page Page) ([]models.School, int64, error) {
	conds := f.conds()
	total, err := r.st.Count(ctx, models.CollectionSchools, conds)
	if err != nil {
		return nil, 0, fmt.Errorf("count schools: %w", err)
	}
	var items []models.School
	if err := r.st.FindMany(ctx, models.CollectionSchools, conds, page.options(r.maxPage), &items); err != nil {
		return nil, 0, fmt.Errorf("list schools: %w", err)
	}
	return items, total, nil
}

// ByMunicipality lists the schools of one municipality.
func (r *Schools) ByMunicipality(ctx context.Context, code int, page Page) ([]models.School, int64, error) {
	return r.List(ctx, SchoolFilter{MunicipalityCode: code}, page)
}
