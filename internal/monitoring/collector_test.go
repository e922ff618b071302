package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/store"
)

// mockLister serves runs newest first, like the stores do.
type mockLister struct {
	runs    []model.RunSummary
	listErr error
	calls   int
}

func (m *mockLister) ListRuns(_ context.Context, filter store.RunFilter) ([]model.RunSummary, error) {
	m.calls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	if filter.Offset >= len(m.runs) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(m.runs) {
		end = len(m.runs)
	}
	return m.runs[filter.Offset:end], nil
}

var collectNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCollector(l RunLister) *Collector {
	c := NewCollector(l)
	c.now = func() time.Time { return collectNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	lister := &mockLister{runs: []model.RunSummary{
		{RunID: "1", Grade: "A", OverallScore: 92, Tier: model.TierCold, TotalCostUSD: 0.40, CompletedAt: collectNow.Add(-time.Hour)},
		{RunID: "2", Grade: "D", OverallScore: 48, Tier: model.TierHot, TotalCostUSD: 0.60, CompletedAt: collectNow.Add(-2 * time.Hour)},
		{RunID: "3", Incomplete: true, Tier: model.TierWarm, TotalCostUSD: 0.20, CompletedAt: collectNow.Add(-3 * time.Hour)},
		// outside the 24h window
		{RunID: "4", Grade: "F", OverallScore: 10, TotalCostUSD: 5, CompletedAt: collectNow.Add(-48 * time.Hour)},
	}}

	snap, err := newTestCollector(lister).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsIncomplete)
	assert.InDelta(t, 1.0/3, snap.IncompleteRate, 1e-9)
	assert.InDelta(t, 1.20, snap.CostUSD, 1e-9)
	assert.InDelta(t, 0.40, snap.AvgCostUSD, 1e-9)
	assert.InDelta(t, 70, snap.AvgScore, 1e-9)
	assert.Equal(t, map[string]int{"A": 1, "D": 1}, snap.Grades)
	assert.Equal(t, 1, snap.Tiers[model.TierHot])
	assert.Equal(t, []string{"2"}, snap.HotLeads)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, collectNow, snap.CollectedAt)
}

func TestCollector_Collect_Pages(t *testing.T) {
	runs := make([]model.RunSummary, pageSize+10)
	for i := range runs {
		runs[i] = model.RunSummary{RunID: "r", Grade: "B", OverallScore: 80, CompletedAt: collectNow.Add(-time.Minute)}
	}
	lister := &mockLister{runs: runs}

	snap, err := newTestCollector(lister).Collect(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, pageSize+10, snap.RunsTotal)
	assert.Equal(t, 2, lister.calls)
}

func TestCollector_Collect_Empty(t *testing.T) {
	snap, err := newTestCollector(&mockLister{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.IncompleteRate)
	assert.Zero(t, snap.AvgScore)
}

func TestCollector_Collect_ListError(t *testing.T) {
	_, err := newTestCollector(&mockLister{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}
