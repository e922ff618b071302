// Package pipeline runs one site analysis end to end: discovery, triage,
// capture, the five analyzers alongside AI weighting, grading, then lead
// scoring alongside issue synthesis.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/belivan/MaxantAgency-sub002/internal/analyzer"
	"github.com/belivan/MaxantAgency-sub002/internal/capture"
	"github.com/belivan/MaxantAgency-sub002/internal/cost"
	"github.com/belivan/MaxantAgency-sub002/internal/discovery"
	"github.com/belivan/MaxantAgency-sub002/internal/grading"
	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/leadscore"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/objectstore"
	"github.com/belivan/MaxantAgency-sub002/internal/store"
	"github.com/belivan/MaxantAgency-sub002/internal/synthesis"
	"github.com/belivan/MaxantAgency-sub002/internal/triage"
)

var (
	// ErrInvalidBudget is returned before any work when the page budget is below 1.
	ErrInvalidBudget = eris.New("pipeline: page budget must be at least 1")
	// ErrCostBudgetExceeded is the cancellation cause when a run passes MaxCostUSD.
	ErrCostBudgetExceeded = eris.New("pipeline: cost budget exceeded")
)

const persistTimeout = 30 * time.Second

// Ledger operation names for non-inference costs.
const (
	opCapture = "capture"
	opPut     = "objectstore.put"
)

// Discoverer finds candidate pages. *discovery.Crawler satisfies it.
type Discoverer interface {
	Discover(ctx context.Context, rootURL string, maxDepth, maxPages int) (*discovery.Result, error)
}

// AnalyzerFactory builds a run's analyzers around its inference service
// and ledger.
type AnalyzerFactory func(svc inference.Service, rec inference.Recorder, cfg analyzer.Config) []analyzer.Analyzer

// Pipeline orchestrates one analysis run per call to Run. It holds no
// per-run state and is safe for concurrent use.
type Pipeline struct {
	cfg        Config
	discoverer Discoverer
	inference  inference.Service
	browsers   capture.Pool
	objects    objectstore.Store
	store      store.Store
	costCalc   *cost.Calculator
	scorer     *leadscore.Scorer
	analyzers  AnalyzerFactory
	now        func() time.Time
}

// New creates a Pipeline. objects and st may be nil: screenshots then stay
// in memory and results are not persisted. A nil svc runs every AI step
// on its deterministic fallback.
func New(
	cfg Config,
	discoverer Discoverer,
	svc inference.Service,
	browsers capture.Pool,
	objects objectstore.Store,
	st store.Store,
	calc *cost.Calculator,
	scorer *leadscore.Scorer,
) *Pipeline {
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	if scorer == nil {
		scorer = leadscore.NewScorer(leadscore.DefaultProfile())
	}
	return &Pipeline{
		cfg:        cfg.withDefaults(),
		discoverer: discoverer,
		inference:  svc,
		browsers:   browsers,
		objects:    objects,
		store:      st,
		costCalc:   calc,
		scorer:     scorer,
		analyzers:  analyzer.Default,
		now:        time.Now,
	}
}

// WithClock replaces the clock used for result timestamps, lead recency
// and the analyzers' date rules.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// WithAnalyzers replaces the analyzer set built for each run.
func (p *Pipeline) WithAnalyzers(f AnalyzerFactory) *Pipeline {
	p.analyzers = f
	return p
}

// run carries the state of one Run call.
type run struct {
	p        *Pipeline
	site     model.Site
	opts     Options
	log      *zap.Logger
	ledger   *cost.Ledger
	runCtx   context.Context
	workCtx  context.Context
	started  time.Time
	warnings []model.Warning
	captures []model.PageCapture
}

// Run analyzes site. Fatal errors (ErrInvalidBudget, an invalid weight
// override, discovery.ErrSiteUnreachable, capture.ErrNoPagesCaptured)
// return no result and persist nothing. Cancellation of ctx or passing
// MaxCostUSD stops further stages after GracePeriod and returns the
// partial result marked Incomplete.
func (p *Pipeline) Run(ctx context.Context, site model.Site, opts Options) (*model.RunOutput, error) {
	opts = opts.withDefaults()
	budget := opts.budget(site)
	if budget < 1 {
		return nil, eris.Wrapf(ErrInvalidBudget, "got %d", budget)
	}
	if len(opts.WeightOverride) > 0 {
		w, err := grading.Normalize(opts.WeightOverride)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: weight override")
		}
		opts.WeightOverride = w
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if site.ID == "" {
		site.ID = site.RootURL
	}

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	ledger := cost.NewLedger(opts.MaxCostUSD)
	ledger.OnExceed(func(total float64) {
		cancelRun(eris.Wrapf(ErrCostBudgetExceeded, "spent $%.4f of $%.4f", total, opts.MaxCostUSD))
	})

	// In-flight work runs on workCtx, which outlives runCtx by the grace period.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	go func() {
		select {
		case <-runCtx.Done():
		case <-workCtx.Done():
			return
		}
		timer := time.NewTimer(opts.GracePeriod)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelWork()
		case <-workCtx.Done():
		}
	}()

	r := &run{
		p:       p,
		site:    site,
		opts:    opts,
		log:     zap.L().With(zap.String("run_id", opts.RunID), zap.String("url", site.RootURL)),
		ledger:  ledger,
		runCtx:  runCtx,
		workCtx: workCtx,
		started: p.now(),
	}
	r.log.Info("pipeline: starting analysis", zap.Int("page_budget", budget))

	out, err := r.execute(budget)
	if err != nil {
		r.log.Error("pipeline: run failed", zap.Error(err))
		return nil, err
	}

	p.persist(ctx, r.log, site, out)

	r.log.Info("pipeline: analysis complete",
		zap.Float64("overall_score", out.Analysis.OverallScore),
		zap.String("grade", out.Analysis.Grade),
		zap.Float64("priority", out.Lead.Priority),
		zap.Bool("incomplete", out.Analysis.Incomplete),
		zap.Float64("cost_usd", out.Analysis.TotalCostUSD),
		zap.Int("warnings", len(out.Analysis.Warnings)),
	)
	return out, nil
}

func (r *run) cancelled() bool {
	return r.runCtx.Err() != nil
}

// trackStage runs fn and logs its duration.
func (r *run) trackStage(stage model.Stage, fn func()) {
	start := time.Now()
	fn()
	r.log.Info("pipeline: stage complete",
		zap.String("stage", string(stage)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// stageCtx bounds one stage by timeout on top of the grace-aware work context.
func (r *run) stageCtx(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.workCtx, timeout)
}

func (r *run) execute(budget int) (*model.RunOutput, error) {
	p := r.p

	// ===== Discovery =====
	var (
		disc    *discovery.Result
		discErr error
	)
	r.trackStage(model.StageDiscovery, func() {
		ctx, cancel := r.stageCtx(r.opts.Timeouts.Discovery)
		defer cancel()
		disc, discErr = p.discoverer.Discover(ctx, r.site.RootURL, p.cfg.MaxDepth, p.cfg.MaxCandidates)
	})
	if discErr != nil {
		if !r.cancelled() {
			return nil, eris.Wrap(discErr, "pipeline: discovery")
		}
		disc = &discovery.Result{}
	}
	if disc.Truncated {
		r.warnings = append(r.warnings, model.Warning{
			Stage:   model.StageDiscovery,
			Subject: r.site.RootURL,
			Reason:  fmt.Sprintf("crawl truncated: stage timeout after %d candidates", len(disc.Pages)),
		})
	}
	if disc.Block != discovery.BlockNone {
		r.warnings = append(r.warnings, model.Warning{
			Stage:   model.StageDiscovery,
			Subject: r.site.RootURL,
			Reason:  fmt.Sprintf("anti-bot challenge detected (%s)", disc.Block),
		})
	}

	// ===== Triage =====
	var selected []model.SelectedPage
	if !r.cancelled() && len(disc.Pages) > 0 {
		r.trackStage(model.StageTriage, func() {
			ctx, cancel := r.stageCtx(r.opts.Timeouts.Triage)
			defer cancel()
			sel := triage.NewSelector(p.inference, r.ledger, p.cfg.Triage)
			var ws []model.Warning
			selected, ws = sel.Select(ctx, disc.Pages[0].URL, disc.Pages, budget)
			r.warnings = append(r.warnings, ws...)
		})
	}

	// ===== Capture =====
	if !r.cancelled() && len(selected) > 0 {
		r.trackStage(model.StageCapture, func() {
			r.capture(selected)
		})
	}
	if len(r.captures) == 0 && !r.cancelled() {
		return nil, eris.Wrapf(capture.ErrNoPagesCaptured, "%d pages selected", len(selected))
	}

	// ===== Analyzers ∥ Weighting =====
	scores := map[model.Dimension]model.DimensionScore{}
	weights, source := grading.DefaultWeights(), model.WeightsDefault
	if len(p.cfg.Weigher.Default) > 0 {
		weights = p.cfg.Weigher.Default.Clone()
	}
	if !r.cancelled() {
		r.trackStage(model.StageAnalyze, func() {
			var (
				g              errgroup.Group
				analyzeWarns   []model.Warning
				weightingWarns []model.Warning
			)
			g.Go(func() error {
				ctx, cancel := r.stageCtx(r.opts.Timeouts.Analyze)
				defer cancel()
				in := analyzer.Input{Site: r.site, Captures: r.captures}
				acfg := p.cfg.Analyzer
				acfg.Now = p.now
				scores, analyzeWarns = analyzer.Run(ctx, p.analyzers(p.inference, r.ledger, acfg), in, r.opts.AnalyzerConcurrency)
				return nil
			})
			g.Go(func() error {
				if len(r.opts.WeightOverride) > 0 {
					weights, source = r.opts.WeightOverride.Clone(), model.WeightsOverride
					return nil
				}
				ctx, cancel := r.stageCtx(r.opts.Timeouts.Weighting)
				defer cancel()
				w := grading.NewWeigher(p.inference, r.ledger, p.cfg.Weigher)
				weights, source, weightingWarns = w.Weights(ctx, r.site.Industry)
				return nil
			})
			_ = g.Wait()
			r.warnings = append(r.warnings, analyzeWarns...)
			r.warnings = append(r.warnings, weightingWarns...)
		})
	}

	// ===== Grading =====
	result := &model.AnalysisResult{
		RunID:         r.opts.RunID,
		SiteID:        r.site.ID,
		RootURL:       r.site.RootURL,
		Dimensions:    scores,
		Weights:       weights,
		WeightSource:  source,
		PagesCaptured: make([]model.CaptureSummary, 0, len(r.captures)),
	}
	for i := range r.captures {
		result.PagesCaptured = append(result.PagesCaptured, r.captures[i].Summary())
	}
	graded, gradeErr := grading.Grade(scores, weights, p.cfg.Bands)
	if gradeErr != nil {
		r.warnings = append(r.warnings, model.Warning{Stage: model.StageGrading, Reason: "no dimension produced a score, site not graded"})
	} else {
		result.OverallScore = graded.Score
		result.Grade = graded.Grade
		result.Weights = graded.Weights
		result.Graded = true
	}

	// ===== Lead ∥ Synthesis =====
	raw := result.RawIssues()
	result.RawIssueCount = len(raw)
	var lead model.LeadScore
	r.trackStage(model.StageSynthesis, func() {
		var (
			g         errgroup.Group
			synthWarn []model.Warning
		)
		g.Go(func() error {
			lead = p.scorer.Score(r.leadInput(result))
			return nil
		})
		g.Go(func() error {
			svc := p.inference
			if r.cancelled() {
				svc = nil
			}
			ctx, cancel := r.stageCtx(r.opts.Timeouts.Synthesis)
			defer cancel()
			s := synthesis.NewSynthesizer(svc, r.ledger, p.cfg.Synthesis)
			result.Synthesis, synthWarn = s.Synthesize(ctx, raw)
			return nil
		})
		_ = g.Wait()
		r.warnings = append(r.warnings, synthWarn...)
	})

	// ===== Finish =====
	if r.cancelled() {
		result.Incomplete = true
		result.IncompleteReason = context.Cause(r.runCtx).Error()
		r.log.Warn("pipeline: run cancelled, returning partial result", zap.String("reason", result.IncompleteReason))
	}
	result.Costs = r.ledger.Entries()
	result.TotalCostUSD = r.ledger.Total()
	model.SortWarnings(r.warnings)
	result.Warnings = r.warnings
	if result.Warnings == nil {
		result.Warnings = []model.Warning{}
	}
	done := p.now()
	result.CompletedAt = done
	result.Elapsed = done.Sub(r.started)

	return &model.RunOutput{Analysis: result, Lead: &lead}, nil
}

func (r *run) capture(selected []model.SelectedPage) {
	p := r.p
	cfg := p.cfg.Capture
	if r.opts.CaptureConcurrency > 0 {
		cfg.Concurrency = r.opts.CaptureConcurrency
	}
	ctx, cancel := r.stageCtx(r.opts.Timeouts.Capture)
	defer cancel()

	start := time.Now()
	captures, ws, stats := capture.NewCapturer(p.browsers, p.objects, cfg).CaptureAll(ctx, r.opts.RunID, selected)
	latency := time.Since(start)
	r.captures = captures
	r.warnings = append(r.warnings, ws...)

	if stats.Rendered > 0 {
		r.ledger.Append(model.CostEntry{
			Operation: opCapture,
			Model:     "browser",
			CostUSD:   p.costCalc.Capture(stats.Rendered),
			Latency:   latency,
		})
	}
	if stats.Uploaded > 0 {
		r.ledger.Append(model.CostEntry{
			Operation: opPut,
			Model:     "storage",
			CostUSD:   p.costCalc.Put(stats.Uploaded),
		})
	}
}

func (r *run) leadInput(result *model.AnalysisResult) leadscore.Input {
	in := leadscore.Input{
		Industry: r.site.Industry,
		Business: r.site.Business,
		Site:     leadscore.SignalsFromCaptures(r.captures),
		Now:      r.p.now(),
	}
	if result.Graded {
		score := result.OverallScore
		in.OverallScore = &score
	}
	return in
}

// persist upserts the run's artifacts. Failures become warnings on the
// returned result; the run itself still succeeds.
func (p *Pipeline) persist(ctx context.Context, log *zap.Logger, site model.Site, out *model.RunOutput) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	fail := func(subject string, err error) {
		log.Warn("pipeline: persist failed", zap.String("subject", subject), zap.Error(err))
		out.Analysis.Warnings = append(out.Analysis.Warnings, model.Warning{
			Stage:   model.StagePersist,
			Subject: subject,
			Reason:  err.Error(),
		})
	}

	if err := p.store.UpsertSite(ctx, &site); err != nil {
		fail("site", err)
	}
	if err := p.store.SaveAnalysis(ctx, out.Analysis); err != nil {
		fail("analysis", err)
	}
	if err := p.store.SaveLeadScore(ctx, out.Analysis.RunID, out.Lead); err != nil {
		fail("lead", err)
	}
}
