// Package analyzer scores captured pages along the five quality dimensions.
// Each analyzer is independent; Run fans them out and isolates failures so
// one broken dimension never takes the others down.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Input is what every analyzer receives: the site and its successful captures.
type Input struct {
	Site     model.Site
	Captures []model.PageCapture
}

// Root returns the homepage capture, or the first capture when the root
// failed to capture. It returns nil for an empty input.
func (in Input) Root() *model.PageCapture {
	for i := range in.Captures {
		if in.Captures[i].IsRoot {
			return &in.Captures[i]
		}
	}
	if len(in.Captures) > 0 {
		return &in.Captures[0]
	}
	return nil
}

// Analyzer scores one dimension.
type Analyzer interface {
	Dimension() model.Dimension
	Analyze(ctx context.Context, in Input) (*model.DimensionScore, error)
}

// Config holds model choices shared by the AI-assisted analyzers.
type Config struct {
	Model       string
	VisionModel string
	MaxTokens   int64
	// MaxTextPages bounds how many pages' text goes into the content review.
	MaxTextPages int
	// MaxTextChars truncates each page's text in prompts.
	MaxTextChars int
	Now          func() time.Time
}

func (c Config) withDefaults() Config {
	if c.VisionModel == "" {
		c.VisionModel = c.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	if c.MaxTextPages <= 0 {
		c.MaxTextPages = 4
	}
	if c.MaxTextChars <= 0 {
		c.MaxTextChars = 3000
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Default returns the five standard analyzers in canonical dimension order.
// rec receives the cost of every AI call and may be nil.
func Default(svc inference.Service, rec inference.Recorder, cfg Config) []Analyzer {
	cfg = cfg.withDefaults()
	return []Analyzer{
		NewDesign(svc, rec, cfg),
		NewSEO(),
		NewContent(svc, rec, cfg),
		NewSocial(svc, rec, cfg),
		NewAccessibility(),
	}
}

// Run executes analyzers concurrently, at most concurrency at a time, and
// returns the scores that succeeded. A failed or panicking analyzer yields
// no score and a warning; a degraded one yields both.
func Run(ctx context.Context, analyzers []Analyzer, in Input, concurrency int) (map[model.Dimension]model.DimensionScore, []model.Warning) {
	if concurrency <= 0 {
		concurrency = 5
	}

	scores := make([]*model.DimensionScore, len(analyzers))
	errs := make([]error, len(analyzers))

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, a := range analyzers {
		g.Go(func() error {
			scores[i], errs[i] = safeAnalyze(ctx, a, in)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[model.Dimension]model.DimensionScore, len(analyzers))
	var warnings []model.Warning
	for i, a := range analyzers {
		dim := a.Dimension()
		if errs[i] != nil {
			zap.L().Warn("analyzer: dimension excluded", zap.String("dimension", string(dim)), zap.Error(errs[i]))
			warnings = append(warnings, model.Warning{
				Stage:   model.StageAnalyze,
				Subject: string(dim),
				Reason:  fmt.Sprintf("dimension excluded: %v", errs[i]),
			})
			continue
		}
		if scores[i] == nil {
			continue
		}
		if scores[i].DegradedReason != "" {
			warnings = append(warnings, model.Warning{
				Stage:   model.StageAnalyze,
				Subject: string(dim),
				Reason:  "degraded: " + scores[i].DegradedReason,
			})
		}
		out[dim] = *scores[i]
	}
	return out, warnings
}

func safeAnalyze(ctx context.Context, a Analyzer, in Input) (score *model.DimensionScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			score = nil
			err = eris.Errorf("%s analyzer panicked: %v", a.Dimension(), r)
		}
	}()

	score, err = a.Analyze(ctx, in)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return nil, eris.Errorf("%s analyzer returned no score", a.Dimension())
	}
	score.Dimension = a.Dimension()
	if score.Issues == nil {
		score.Issues = []model.Issue{}
	}
	return score, nil
}
