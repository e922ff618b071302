package model

import (
	"sort"
	"time"
)

// DimensionScore is one analyzer's site-level score and findings.
type DimensionScore struct {
	Dimension      Dimension `json:"dimension"`
	Score          float64   `json:"score"`
	Issues         []Issue   `json:"issues"`
	PagesAnalyzed  int       `json:"pages_analyzed"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
}

// WeightVector maps dimensions to weights summing to 1.0.
type WeightVector map[Dimension]float64

// Sum returns the total weight.
func (w WeightVector) Sum() float64 {
	var s float64
	for _, d := range AllDimensions() {
		s += w[d]
	}
	return s
}

// Clone returns a copy of the vector.
func (w WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// WeightSource identifies where a run's weight vector came from.
type WeightSource string

const (
	WeightsDefault  WeightSource = "default"
	WeightsAI       WeightSource = "ai"
	WeightsOverride WeightSource = "override"
)

// Stage names a pipeline stage in warnings and logs.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageTriage    Stage = "triage"
	StageCapture   Stage = "capture"
	StageAnalyze   Stage = "analyze"
	StageWeighting Stage = "weighting"
	StageGrading   Stage = "grading"
	StageLead      Stage = "lead"
	StageSynthesis Stage = "synthesis"
	StagePersist   Stage = "persist"
	StageRun       Stage = "run"
)

// Warning is a recoverable failure attached to a run result.
type Warning struct {
	Stage   Stage  `json:"stage"`
	Subject string `json:"subject,omitempty"`
	Reason  string `json:"reason"`
}

// SortWarnings orders warnings by stage, subject, then reason.
func SortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Stage != ws[j].Stage {
			return ws[i].Stage < ws[j].Stage
		}
		if ws[i].Subject != ws[j].Subject {
			return ws[i].Subject < ws[j].Subject
		}
		return ws[i].Reason < ws[j].Reason
	})
}

// TokenUsage tracks token consumption for one inference call.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
}

// CostEntry is one ledger line: a single external operation and its cost.
type CostEntry struct {
	Operation string        `json:"operation"`
	Model     string        `json:"model"`
	Usage     TokenUsage    `json:"usage"`
	CostUSD   float64       `json:"cost_usd"`
	Latency   time.Duration `json:"latency"`
	Failed    bool          `json:"failed,omitempty"`
}

// AnalysisResult is the terminal artifact of one run.
type AnalysisResult struct {
	RunID            string                       `json:"run_id"`
	SiteID           string                       `json:"site_id"`
	RootURL          string                       `json:"root_url"`
	OverallScore     float64                      `json:"overall_score"`
	Grade            string                       `json:"grade"`
	Graded           bool                         `json:"graded"`
	Dimensions       map[Dimension]DimensionScore `json:"dimensions"`
	Weights          WeightVector                 `json:"weights"`
	WeightSource     WeightSource                 `json:"weight_source"`
	PagesCaptured    []CaptureSummary             `json:"pages_captured"`
	RawIssueCount    int                          `json:"raw_issue_count"`
	Synthesis        SynthesisResult              `json:"synthesis"`
	Costs            []CostEntry                  `json:"costs"`
	TotalCostUSD     float64                      `json:"total_cost_usd"`
	Warnings         []Warning                    `json:"warnings"`
	Incomplete       bool                         `json:"incomplete"`
	IncompleteReason string                       `json:"incomplete_reason,omitempty"`
	Elapsed          time.Duration                `json:"elapsed"`
	CompletedAt      time.Time                    `json:"completed_at"`
}

// RawIssues returns every issue across dimensions in canonical dimension order.
func (r *AnalysisResult) RawIssues() []Issue {
	var out []Issue
	for _, d := range AllDimensions() {
		if ds, ok := r.Dimensions[d]; ok {
			out = append(out, ds.Issues...)
		}
	}
	return out
}

// Tier is a lead priority bucket.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// LeadScore is the deterministic business-fit score of a prospect.
type LeadScore struct {
	Priority    float64 `json:"priority"`
	Tier        Tier    `json:"tier"`
	QualityGap  float64 `json:"quality_gap"`
	Budget      float64 `json:"budget"`
	Urgency     float64 `json:"urgency"`
	IndustryFit float64 `json:"industry_fit"`
	CompanySize float64 `json:"company_size"`
	Engagement  float64 `json:"engagement"`
	Reasoning   string  `json:"reasoning"`
}

// RunOutput pairs the two artifacts produced by a run.
type RunOutput struct {
	Analysis *AnalysisResult `json:"analysis"`
	Lead     *LeadScore      `json:"lead,omitempty"`
}

// RunStatus is the lifecycle state of a run tracked by the API server.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunSummary is a row of the persisted run listing.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	SiteID       string    `json:"site_id"`
	RootURL      string    `json:"root_url"`
	OverallScore float64   `json:"overall_score"`
	Grade        string    `json:"grade"`
	Tier         Tier      `json:"tier,omitempty"`
	Priority     float64   `json:"priority"`
	Incomplete   bool      `json:"incomplete"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	CompletedAt  time.Time `json:"completed_at"`
}
