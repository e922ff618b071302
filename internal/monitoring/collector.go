package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/store"
)

const pageSize = 200

// MetricsSnapshot holds a point-in-time view of recent analysis runs.
type MetricsSnapshot struct {
	RunsTotal      int     `json:"runs_total"`
	RunsIncomplete int     `json:"runs_incomplete"`
	IncompleteRate float64 `json:"incomplete_rate"`
	CostUSD        float64 `json:"cost_usd"`
	AvgCostUSD     float64 `json:"avg_cost_usd"`
	AvgScore       float64 `json:"avg_score"`

	Grades map[string]int     `json:"grades"`
	Tiers  map[model.Tier]int `json:"tiers"`
	// HotLeads lists the run ids of hot-tier leads in the window.
	HotLeads []string `json:"hot_leads,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.RunSummary, error)
}

// Collector gathers metrics from the run history.
type Collector struct {
	store RunLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect summarizes the runs completed within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		Grades:        map[string]int{},
		Tiers:         map[model.Tier]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var (
		scoreSum float64
		graded   int
	)
	// ListRuns is newest first, so paging stops at the first run older
	// than the cutoff.
	for offset := 0; ; offset += pageSize {
		runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}
		done := len(runs) < pageSize
		for _, r := range runs {
			if r.CompletedAt.Before(cutoff) {
				done = true
				break
			}
			snap.RunsTotal++
			snap.CostUSD += r.TotalCostUSD
			if r.Incomplete {
				snap.RunsIncomplete++
			}
			if r.Grade != "" {
				snap.Grades[r.Grade]++
				scoreSum += r.OverallScore
				graded++
			}
			if r.Tier != "" {
				snap.Tiers[r.Tier]++
			}
			if r.Tier == model.TierHot {
				snap.HotLeads = append(snap.HotLeads, r.RunID)
			}
		}
		if done {
			break
		}
	}

	if snap.RunsTotal > 0 {
		snap.IncompleteRate = float64(snap.RunsIncomplete) / float64(snap.RunsTotal)
		snap.AvgCostUSD = snap.CostUSD / float64(snap.RunsTotal)
	}
	if graded > 0 {
		snap.AvgScore = scoreSum / float64(graded)
	}
	return snap, nil
}
