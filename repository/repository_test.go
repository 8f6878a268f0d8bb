package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestPageNormalize(t *testing.T) {
	cases := []struct {
		name      string
		page      Page
		max       int64
		wantSkip  int64
		wantLimit int64
	}{
		{"zero value gets defaults", Page{}, 1000, 0, DefaultPageSize},
		{"negative skip collapses to zero", Page{Skip: -5}, 1000, 0, DefaultPageSize},
		{"negative limit collapses to default", Page{Limit: -1}, 1000, 0, DefaultPageSize},
		{"limit capped at max", Page{Limit: 5000}, 1000, 0, 1000},
		{"limit within cap kept", Page{Skip: 10, Limit: 50}, 1000, 10, 50},
		{"no cap when max is zero", Page{Limit: 5000}, 0, 0, 5000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			skip, limit := tc.page.normalize(tc.max)
			assert.Equal(t, tc.wantSkip, skip)
			assert.Equal(t, tc.wantLimit, limit)
		})
	}
}

func TestMunicipalitiesLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMunicipalities(store.NewMemory(), testLogger(), 1000)

	_, err := repo.Create(ctx, &models.Municipality{Code: 3550308, Name: "São Paulo", State: "SP", Region: "Sudeste"})
	require.NoError(t, err)

	m, err := repo.GetByCode(ctx, 3550308)
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", m.Name)
	assert.False(t, m.CreatedAt.IsZero())

	// A missing natural key is ErrNotFound; an empty list is not.
	_, err = repo.GetByCode(ctx, 9999999)
	assert.ErrorIs(t, err, store.ErrNotFound)

	items, total, err := repo.List(ctx, MunicipalityFilter{State: "RJ"}, Page{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestMunicipalitiesDuplicateCode(t *testing.T) {
	ctx := context.Background()
	repo := NewMunicipalities(store.NewMemory(), testLogger(), 1000)

	_, err := repo.Create(ctx, &models.Municipality{Code: 1, Name: "a"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.Municipality{Code: 1, Name: "b"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestSchoolsListPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewSchools(store.NewMemory(), testLogger(), 1000)

	for i := 1; i <= 7; i++ {
		_, err := repo.Create(ctx, &models.School{Code: i, Name: fmt.Sprintf("school %d", i), State: "BA"})
		require.NoError(t, err)
	}

	items, total, err := repo.List(ctx, SchoolFilter{State: "BA"}, Page{Limit: 3, Sort: "code"})
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.EqualValues(t, 7, total)

	items, total, err = repo.List(ctx, SchoolFilter{State: "BA"}, Page{Skip: 6, Limit: 3, Sort: "code"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Code)
	assert.EqualValues(t, 7, total)

	// Skip past the end: empty page, full total, no error.
	items, total, err = repo.List(ctx, SchoolFilter{State: "BA"}, Page{Skip: 100})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.EqualValues(t, 7, total)
}

func TestSchoolsMaxPageCap(t *testing.T) {
	ctx := context.Background()
	repo := NewSchools(store.NewMemory(), testLogger(), 2)

	for i := 1; i <= 5; i++ {
		_, err := repo.Create(ctx, &models.School{Code: i, State: "CE"})
		require.NoError(t, err)
	}

	items, _, err := repo.List(ctx, SchoolFilter{}, Page{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestParticipantsByRegistration(t *testing.T) {
	ctx := context.Background()
	repo := NewParticipants(store.NewMemory(), testLogger(), 1000)

	_, err := repo.Create(ctx, &models.Participant{Registration: "20230001", Year: 2023, Sex: "F", ExamState: "SP"})
	require.NoError(t, err)

	p, err := repo.GetByRegistration(ctx, "20230001")
	require.NoError(t, err)
	assert.Equal(t, 2023, p.Year)

	_, err = repo.GetByRegistration(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResultsDerivedAverage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	repo := NewResults(st, testLogger(), 1000)

	// The stored average is always derived, never taken from the input.
	bogus := 999.0
	res := &models.Result{
		Registration: "r1",
		Year:         2023,
		Scores:       map[string]float64{"CN": 600, "MT": 700.25},
		Average:      &bogus,
	}
	id, err := repo.Create(ctx, res)
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Average)
	assert.InDelta(t, 650.1, *got.Average, 0.001)

	// Updating the scores recomputes; a patched average is discarded.
	ok, err := repo.Update(ctx, id, map[string]any{
		"scores":  map[string]float64{"CN": 400.0},
		"average": 1000.0,
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err = repo.GetByKey(ctx, "r1", 2023)
	require.NoError(t, err)
	require.NotNil(t, got.Average)
	assert.InDelta(t, 400, *got.Average, 0.001)
}

func TestResultsUpdateLooselyTypedScores(t *testing.T) {
	ctx := context.Background()
	repo := NewResults(store.NewMemory(), testLogger(), 1000)

	id, err := repo.Create(ctx, &models.Result{
		Registration: "r3",
		Year:         2023,
		Scores:       map[string]float64{"CN": 600, "MT": 700},
	})
	require.NoError(t, err)

	// Decoded JSON hands scores over as map[string]any; the average must
	// still track the new scores.
	ok, err := repo.Update(ctx, id, map[string]any{
		"scores": map[string]any{"CN": 400.0, "MT": 500},
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Average)
	assert.InDelta(t, 450, *got.Average, 0.001)
	assert.InDelta(t, 400, got.Scores["CN"], 0.001)

	// Clearing all scores clears the derived average too.
	ok, err = repo.Update(ctx, id, map[string]any{"scores": map[string]any{}})
	require.NoError(t, err)
	require.True(t, ok)
	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Average)

	// Non-numeric scores are rejected instead of silently stored.
	_, err = repo.Update(ctx, id, map[string]any{
		"scores": map[string]any{"CN": "six hundred"},
	})
	assert.Error(t, err)
}

func TestResultsNoScoresNilAverage(t *testing.T) {
	ctx := context.Background()
	repo := NewResults(store.NewMemory(), testLogger(), 1000)

	id, err := repo.Create(ctx, &models.Result{Registration: "r2", Year: 2023})
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Average)
}

func TestResultsByParticipantAcrossYears(t *testing.T) {
	ctx := context.Background()
	repo := NewResults(store.NewMemory(), testLogger(), 1000)

	for _, year := range []int{2023, 2021, 2022} {
		_, err := repo.Create(ctx, &models.Result{Registration: "multi", Year: year})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, &models.Result{Registration: "other", Year: 2023})
	require.NoError(t, err)

	got, err := repo.ByParticipant(ctx, "multi")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2021, got[0].Year)
	assert.Equal(t, 2023, got[2].Year)
}

func TestResultsGetMalformedID(t *testing.T) {
	ctx := context.Background()
	repo := NewResults(store.NewMemory(), testLogger(), 1000)

	_, err := repo.Get(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
