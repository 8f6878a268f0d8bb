package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enemdata/enemdb/models"
	"github.com/enemdata/enemdb/store"
)

func testEngine(st store.Store) *Engine { return New(st, zap.NewNop().Sugar()) }

func addResult(t *testing.T, st *store.Memory, reg string, year int, state string, scores map[string]float64, essay *float64) {
	t.Helper()
	r := models.Result{
		Registration: reg,
		Year:         year,
		ExamState:    state,
		Scores:       scores,
		EssayScore:   essay,
	}
	r.RecomputeAverage()
	_, err := st.Insert(context.Background(), models.CollectionResults, r)
	require.NoError(t, err)
}

func fptr(v float64) *float64 { return &v }

// panicStore blows up on any use; it proves validation happens before
// the store is contacted.
type panicStore struct{ store.Store }

func TestPeriodValidatesBeforeStoreContact(t *testing.T) {
	e := testEngine(panicStore{})

	_, err := e.PeriodAreaAverages(context.Background(), 2023, 2019)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = e.PeriodGroupAverages(context.Background(), models.CollectionResults,
		"year", 5, 1, "exam_state", []string{"average"})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = e.PeriodResults(context.Background(), 2023, 2019, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestPeriodResults(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	for _, year := range []int{2019, 2021, 2022, 2023, 2024} {
		addResult(t, st, "p", year, "SP", map[string]float64{"CN": 500}, nil)
	}
	e := testEngine(st)

	// Both interval ends are inclusive.
	got, err := e.PeriodResults(ctx, 2021, 2023, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2021, got[0].Year)
	assert.Equal(t, 2023, got[2].Year)

	paged, err := e.PeriodResults(ctx, 2021, 2023, 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, 2022, paged[0].Year)
}

func TestSchoolRanking(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	ten, twenty := 10, 20
	for _, r := range []models.Result{
		{Registration: "a", Year: 2023, SchoolCode: &ten, Scores: map[string]float64{"CN": 700}},
		{Registration: "b", Year: 2023, SchoolCode: &ten, Scores: map[string]float64{"CN": 600}},
		{Registration: "c", Year: 2023, SchoolCode: &twenty, Scores: map[string]float64{"CN": 800}},
		{Registration: "d", Year: 2023, Scores: map[string]float64{"CN": 999}}, // no school
	} {
		r.RecomputeAverage()
		_, err := st.Insert(ctx, models.CollectionResults, r)
		require.NoError(t, err)
	}
	e := testEngine(st)

	ranking, err := e.SchoolRanking(ctx, 2023, 0)
	require.NoError(t, err)
	require.Len(t, ranking, 2)

	// School-less results do not participate, and positions stay dense.
	assert.Equal(t, 1, ranking[0].Position)
	assert.EqualValues(t, 20, keyNum(ranking[0].Key))
	require.NotNil(t, ranking[0].Mean)
	assert.Equal(t, 800.0, *ranking[0].Mean)
	assert.Equal(t, 2, ranking[1].Position)
	assert.EqualValues(t, 10, keyNum(ranking[1].Key))
	assert.Equal(t, 650.0, *ranking[1].Mean)
	assert.EqualValues(t, 2, ranking[1].Count)

	top, err := e.SchoolRanking(ctx, 2023, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.EqualValues(t, 20, keyNum(top[0].Key))
}

func TestGroupAveragesRounding(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	addResult(t, st, "a", 2023, "SP", map[string]float64{"CN": 600}, nil)
	addResult(t, st, "b", 2023, "SP", map[string]float64{"CN": 650}, nil)
	addResult(t, st, "c", 2023, "SP", map[string]float64{"CN": 650}, nil)

	rows, err := testEngine(st).GroupAverages(ctx, models.CollectionResults,
		"exam_state", []string{"scores.CN"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// 1900/3 = 633.33..., reported to one decimal.
	mean := rows[0].Means["scores.CN"]
	require.NotNil(t, mean)
	assert.Equal(t, 633.3, *mean)
}

func TestStateRankingEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// Three participants, four results over two years. MG and SP tie in
	// 2023; RJ trails.
	addResult(t, st, "p1", 2023, "SP", map[string]float64{"CN": 700, "MT": 700}, fptr(820))
	addResult(t, st, "p2", 2023, "MG", map[string]float64{"CN": 700, "MT": 700}, nil)
	addResult(t, st, "p3", 2023, "RJ", map[string]float64{"CN": 500, "MT": 500}, fptr(400))
	addResult(t, st, "p1", 2022, "SP", map[string]float64{"CN": 600, "MT": 600}, fptr(600))

	e := testEngine(st)

	ranking, err := e.StateRanking(ctx, 2023, 0)
	require.NoError(t, err)
	require.Len(t, ranking, 3)

	// Equal means rank by ascending state code.
	assert.Equal(t, 1, ranking[0].Position)
	assert.Equal(t, "MG", ranking[0].Key)
	assert.Equal(t, "SP", ranking[1].Key)
	assert.Equal(t, "RJ", ranking[2].Key)
	require.NotNil(t, ranking[2].Mean)
	assert.Equal(t, 500.0, *ranking[2].Mean)

	// The earlier year drags SP down when no year filter applies.
	all, err := e.StateRanking(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "MG", all[0].Key)
	require.NotNil(t, all[1].Mean)
	assert.Equal(t, 650.0, *all[1].Mean)

	// Top-N truncates after ordering.
	top, err := e.StateRanking(ctx, 2023, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "MG", top[0].Key)

	// A cutoff above every average is an empty result, not an error.
	none, err := e.TopPerformers(ctx, 999, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	some, err := e.TopPerformers(ctx, 600, 0)
	require.NoError(t, err)
	require.Len(t, some, 3)
	assert.Equal(t, "p1", some[0].Registration)
	assert.Equal(t, 2023, some[0].Year)
}

func TestEssayDistributionZeroFill(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	addResult(t, st, "a", 2023, "SP", nil, fptr(150))
	addResult(t, st, "b", 2023, "SP", nil, fptr(820))
	addResult(t, st, "c", 2023, "SP", nil, fptr(1000)) // perfect score stays in the last range
	addResult(t, st, "d", 2023, "SP", nil, nil)        // no essay

	buckets, err := testEngine(st).EssayDistribution(ctx, 2023)
	require.NoError(t, err)
	require.Len(t, buckets, 6)

	assert.Equal(t, BucketCount{Label: "0-199", Count: 1}, buckets[0])
	assert.Equal(t, BucketCount{Label: "200-399", Count: 0}, buckets[1])
	assert.Equal(t, BucketCount{Label: "400-599", Count: 0}, buckets[2])
	assert.Equal(t, BucketCount{Label: "600-799", Count: 0}, buckets[3])
	assert.Equal(t, BucketCount{Label: "800-1000", Count: 2}, buckets[4])
	assert.Equal(t, BucketCount{Label: "other", Count: 1}, buckets[5])
}

func TestAreaAverages(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	addResult(t, st, "a", 2023, "SP", map[string]float64{"CN": 600, "CH": 550}, fptr(700))
	addResult(t, st, "b", 2023, "SP", map[string]float64{"CN": 500}, nil)

	report, err := testEngine(st).AreaAverages(ctx, 2023)
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.Total)

	cn := report.Areas[models.AreaNature]
	require.NotNil(t, cn.Mean)
	assert.Equal(t, 550.0, *cn.Mean)
	assert.EqualValues(t, 2, cn.Count)

	ch := report.Areas[models.AreaHumanities]
	require.NotNil(t, ch.Mean)
	assert.EqualValues(t, 1, ch.Count)

	// Nobody sat MT: nil mean, zero count.
	mt := report.Areas[models.AreaMath]
	assert.Nil(t, mt.Mean)
	assert.Zero(t, mt.Count)

	require.NotNil(t, report.Essay.Mean)
	assert.Equal(t, 700.0, *report.Essay.Mean)
	assert.EqualValues(t, 1, report.Essay.Count)
}

func TestAreaAveragesEmptyCollection(t *testing.T) {
	report, err := testEngine(store.NewMemory()).AreaAverages(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Empty(t, report.Areas)
}

func TestDemographics(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	for _, p := range []models.Participant{
		{Registration: "1", Year: 2023, Sex: "F", Trainee: true},
		{Registration: "2", Year: 2023, Sex: "F"},
		{Registration: "3", Year: 2023, Sex: "M"},
	} {
		_, err := st.Insert(ctx, models.CollectionParticipants, p)
		require.NoError(t, err)
	}

	rows, err := testEngine(st).Demographics(ctx, "sex", 2023)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byValue := map[any]DemographicRow{}
	for _, r := range rows {
		byValue[r.Value] = r
	}
	assert.EqualValues(t, 2, byValue["F"].Count)
	assert.EqualValues(t, 1, byValue["F"].Trainees)
	assert.EqualValues(t, 1, byValue["M"].Count)
	assert.EqualValues(t, 0, byValue["M"].Trainees)
}

func TestRegionStatsNilMeans(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	pop := int64(12000000)
	hdi := 0.805
	for _, m := range []models.Municipality{
		{Code: 1, Region: "Sudeste", Population: &pop, HDI: &hdi},
		{Code: 2, Region: "Norte"}, // no enrichment data
	} {
		_, err := st.Insert(ctx, models.CollectionMunicipalities, m)
		require.NoError(t, err)
	}

	rows, err := testEngine(st).RegionStats(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byKey := map[any]GroupAverage{}
	for _, r := range rows {
		byKey[r.Key] = r
	}
	require.NotNil(t, byKey["Sudeste"].Means["hdi"])
	assert.Equal(t, 0.8, *byKey["Sudeste"].Means["hdi"])
	assert.Nil(t, byKey["Norte"].Means["population"])
	assert.Nil(t, byKey["Norte"].Means["hdi"])
}

func TestPeriodAreaAveragesOrderedByYear(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	addResult(t, st, "a", 2021, "SP", map[string]float64{"CN": 400}, nil)
	addResult(t, st, "b", 2023, "SP", map[string]float64{"CN": 700}, nil)
	addResult(t, st, "c", 2022, "SP", map[string]float64{"CN": 500}, nil)
	addResult(t, st, "d", 2019, "SP", map[string]float64{"CN": 900}, nil) // outside the interval

	rows, err := testEngine(st).PeriodAreaAverages(ctx, 2021, 2023)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.EqualValues(t, 2021, keyNum(rows[0].Key))
	assert.EqualValues(t, 2022, keyNum(rows[1].Key))
	assert.EqualValues(t, 2023, keyNum(rows[2].Key))
}
