package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleResult(runID, siteID string, score float64, at time.Time) *model.AnalysisResult {
	return &model.AnalysisResult{
		RunID:        runID,
		SiteID:       siteID,
		RootURL:      "https://" + siteID + ".test/",
		OverallScore: score,
		Grade:        "B",
		Graded:       true,
		Dimensions: map[model.Dimension]model.DimensionScore{
			model.DimensionSEO: {Dimension: model.DimensionSEO, Score: score, Issues: []model.Issue{}},
		},
		Weights:      model.WeightVector{model.DimensionSEO: 1},
		WeightSource: model.WeightsDefault,
		Synthesis:    model.SynthesisResult{Issues: []model.ConsolidatedIssue{}, Source: model.SynthesisFallback},
		TotalCostUSD: 0.12,
		CompletedAt:  at,
	}
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_Site_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	reviews := 42
	site := &model.Site{ID: "acme", RootURL: "https://acme.test/", Industry: "dental", PageBudget: 5,
		Business: model.BusinessSignals{ReviewCount: &reviews, Locations: 2}}
	require.NoError(t, st.UpsertSite(ctx, site))

	site.Industry = "orthodontics"
	require.NoError(t, st.UpsertSite(ctx, site))

	got, err := st.GetSite(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "orthodontics", got.Industry)
	require.NotNil(t, got.Business.ReviewCount)
	assert.Equal(t, 42, *got.Business.ReviewCount)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetSite(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
	_, err = st.GetAnalysis(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
	_, err = st.GetLeadScore(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_SaveAnalysis_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveAnalysis(ctx, sampleResult("run-1", "acme", 70, at)))
	require.NoError(t, st.SaveAnalysis(ctx, sampleResult("run-1", "acme", 82.5, at)))

	got, err := st.GetAnalysis(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 82.5, got.OverallScore)
	assert.Equal(t, model.WeightsDefault, got.WeightSource)
	assert.True(t, got.CompletedAt.Equal(at))

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_LeadScore_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveLeadScore(ctx, "run-1", &model.LeadScore{Priority: 30, Tier: model.TierCold}))
	require.NoError(t, st.SaveLeadScore(ctx, "run-1", &model.LeadScore{Priority: 75, Tier: model.TierHot, Reasoning: "r"}))

	got, err := st.GetLeadScore(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 75.0, got.Priority)
	assert.Equal(t, model.TierHot, got.Tier)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveAnalysis(ctx, sampleResult("run-a", "acme", 60, base)))
	require.NoError(t, st.SaveAnalysis(ctx, sampleResult("run-b", "acme", 70, base.Add(time.Hour))))
	require.NoError(t, st.SaveAnalysis(ctx, sampleResult("run-c", "globex", 80, base.Add(2*time.Hour))))
	require.NoError(t, st.SaveLeadScore(ctx, "run-b", &model.LeadScore{Priority: 55, Tier: model.TierWarm}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-c", all[0].RunID)
	assert.Equal(t, "run-a", all[2].RunID)

	acme, err := st.ListRuns(ctx, RunFilter{SiteID: "acme"})
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, "run-b", acme[0].RunID)
	assert.Equal(t, model.TierWarm, acme[0].Tier)
	assert.Equal(t, 55.0, acme[0].Priority)
	assert.Equal(t, model.Tier(""), acme[1].Tier)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "run-b", page[0].RunID)
}
