package pipeline

import (
	"time"

	"github.com/belivan/MaxantAgency-sub002/internal/analyzer"
	"github.com/belivan/MaxantAgency-sub002/internal/capture"
	"github.com/belivan/MaxantAgency-sub002/internal/grading"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/synthesis"
	"github.com/belivan/MaxantAgency-sub002/internal/triage"
)

// Config is the static, per-process configuration of a Pipeline.
type Config struct {
	MaxDepth      int
	MaxCandidates int
	Triage        triage.Config
	Capture       capture.Config
	Analyzer      analyzer.Config
	Weigher       grading.WeigherConfig
	Synthesis     synthesis.Config
	Bands         []grading.Band
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 2
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 50
	}
	if len(c.Bands) == 0 {
		c.Bands = grading.DefaultBands()
	}
	return c
}

// Timeouts bounds each stage. Individual external calls inside a stage
// carry their own, shorter timeouts.
type Timeouts struct {
	Discovery time.Duration
	Triage    time.Duration
	Capture   time.Duration
	Analyze   time.Duration
	Weighting time.Duration
	Synthesis time.Duration
}

// DefaultTimeouts returns the standard stage timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Discovery: 2 * time.Minute,
		Triage:    time.Minute,
		Capture:   5 * time.Minute,
		Analyze:   3 * time.Minute,
		Weighting: 30 * time.Second,
		Synthesis: 90 * time.Second,
	}
}

// Options are the per-run knobs of Run.
type Options struct {
	// RunID identifies the run; a UUID is generated when empty.
	RunID string
	// PageBudget overrides Site.PageBudget when non-zero.
	PageBudget          int
	CaptureConcurrency  int
	AnalyzerConcurrency int
	Timeouts            Timeouts
	// WeightOverride skips the AI weighting step when set.
	WeightOverride model.WeightVector
	// MaxCostUSD cancels the run once the ledger passes it. Zero disables the cap.
	MaxCostUSD float64
	// GracePeriod is how long in-flight work may continue after the run
	// is cancelled.
	GracePeriod time.Duration
}

func (o Options) withDefaults() Options {
	def := DefaultTimeouts()
	if o.Timeouts.Discovery <= 0 {
		o.Timeouts.Discovery = def.Discovery
	}
	if o.Timeouts.Triage <= 0 {
		o.Timeouts.Triage = def.Triage
	}
	if o.Timeouts.Capture <= 0 {
		o.Timeouts.Capture = def.Capture
	}
	if o.Timeouts.Analyze <= 0 {
		o.Timeouts.Analyze = def.Analyze
	}
	if o.Timeouts.Weighting <= 0 {
		o.Timeouts.Weighting = def.Weighting
	}
	if o.Timeouts.Synthesis <= 0 {
		o.Timeouts.Synthesis = def.Synthesis
	}
	if o.AnalyzerConcurrency <= 0 {
		o.AnalyzerConcurrency = len(model.AllDimensions())
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 10 * time.Second
	}
	return o
}

// budget resolves the page budget for site.
func (o Options) budget(site model.Site) int {
	if o.PageBudget != 0 {
		return o.PageBudget
	}
	return site.PageBudget
}
