package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

// ParticipantFilter is the closed set of list criteria for participants.
// Pointer fields distinguish "any" from a real zero code.
type ParticipantFilter struct {
	Year                 int
	ExamState            string
	ExamMunicipalityCode int
	Sex                  string
	AgeBand              int
	Race                 *int
	Trainee              *bool
	SchoolCode           *int
}

func (f ParticipantFilter) conds() store.Filter {
	var out store.Filter
	if f.Year != 0 {
		out = append(out, store.Eq("year", f.Year))
	}
	if f.ExamState != "" {
		out = append(out, store.Eq("exam_state", f.ExamState))
	}
	if f.ExamMunicipalityCode != 0 {
		out = append(out, store.Eq("exam_municipality_code", f.ExamMunicipalityCode))
	}
	if f.Sex != "" {
		out = append(out, store.Eq("sex", f.Sex))
	}
	if f.AgeBand != 0 {
		out = append(out, store.Eq("age_band", f.AgeBand))
	}
	if f.Race != nil {
		out = append(out, store.Eq("race", *f.Race))
	}
	if f.Trainee != nil {
		out = append(out, store.Eq("trainee", *f.Trainee))
	}
	if f.SchoolCode != nil {
		out = append(out, store.Eq("school_code", *f.SchoolCode))
	}
	return out
}

// Participants is the repository for participant documents.
type Participants struct {
	st      store.Store
	log     *zap.SugaredLogger
	maxPage int64
}

func NewParticipants(st store.Store, log *zap.SugaredLogger, maxPage int64) *Participants {
	st.RegisterNaturalKey(models.CollectionParticipants, "registration")
	return &Participants{st: st, log: log, maxPage: maxPage}
}

func (r *Participants) Create(ctx context.Context, p *models.Participant) (string, error) {
	p.Touch(time.Now().UTC())
	id, err := r.st.Insert(ctx, models.CollectionParticipants, p)
	if err != nil {
		return "", fmt.Errorf("create participant %s: %w", p.Registration, err)
	}
	return id, nil
}

func (r *Participants) Get(ctx context.Context, id string) (*models.Participant, error) {
	f, ok := idFilter(id)
	if !ok {
		return nil, fmt.Errorf("participant %q: %w", id, store.ErrNotFound)
	}
	var p models.Participant
	if err := r.st.FindOne(ctx, models.CollectionParticipants, f, &p); err != nil {
		return nil, fmt.Errorf("participant %q: %w", id, err)
	}
	return &p, nil
}

// GetByRegistration looks a participant up by the registration number.
func (r *Participants) GetByRegistration(ctx context.Context, registration string) (*models.Participant, error) {
	var p models.Participant
	f := store.Filter{store.Eq("registration", registration)}
	if err := r.st.FindOne(ctx, models.CollectionParticipants, f, &p); err != nil {
		return nil, fmt.Errorf("participant registration %s: %w", registration, err)
	}
	return &p, nil
}

func (r *Participants) Update(ctx context.Context, id string, patch map[string]any) (bool, error) {
	return r.st.Update(ctx, models.CollectionParticipants, id, patch)
}

func (r *Participants) Delete(ctx context.Context, id string) (bool, error) {
	return r.st.Delete(ctx, models.CollectionParticipants, id)
}

func (r *Participants) List(ctx context.Context, f ParticipantFilter, page Page) ([]models.Participant, int64, error) {
	conds := f.conds()
	total, err := r.st.Count(ctx, models.CollectionParticipants, conds)
	if err != nil {
		return nil, 0, fmt.Errorf("count participants: %w", err)
	}
	var items []models.Participant
	if err := r.st.FindMany(ctx, models.CollectionParticipants, conds, page.options(r.maxPage), &items); err != nil {
		return nil, 0, fmt.Errorf("list participants: %w", err)
	}
	return items, total, nil
}
