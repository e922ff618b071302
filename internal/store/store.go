// Package store persists sites, analysis results and lead scores. Writes
// are upserts keyed by run id so re-running a run overwrites its result.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	SiteID string `json:"site_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	// Sites
	GetSite(ctx context.Context, id string) (*model.Site, error)
	UpsertSite(ctx context.Context, site *model.Site) error

	// Results
	SaveAnalysis(ctx context.Context, result *model.AnalysisResult) error
	SaveLeadScore(ctx context.Context, runID string, lead *model.LeadScore) error
	GetAnalysis(ctx context.Context, runID string) (*model.AnalysisResult, error)
	GetLeadScore(ctx context.Context, runID string) (*model.LeadScore, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func marshal(kind string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal %s", kind)
	}
	return b, nil
}

func unmarshal[T any](kind string, data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal %s", kind)
	}
	return &out, nil
}
