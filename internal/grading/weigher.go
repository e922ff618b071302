package grading

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Operation is the ledger name of the weighting call.
const Operation = "weighting"

// aiTolerance is how far an AI vector may stray from summing to 1.
const aiTolerance = 0.05

// WeigherConfig configures the AI weighting step.
type WeigherConfig struct {
	Model     string
	MaxTokens int64
	// Default is returned whenever the AI vector is unavailable.
	Default model.WeightVector
}

// Weigher asks the inference service for an industry-tuned weight vector.
type Weigher struct {
	svc inference.Service
	rec inference.Recorder
	cfg WeigherConfig
}

// NewWeigher creates a Weigher. svc may be nil, in which case Weights
// always returns the default vector.
func NewWeigher(svc inference.Service, rec inference.Recorder, cfg WeigherConfig) *Weigher {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if len(cfg.Default) == 0 {
		cfg.Default = DefaultWeights()
	}
	return &Weigher{svc: svc, rec: rec, cfg: cfg}
}

type aiWeights struct {
	Weights   map[string]float64 `json:"weights"`
	Rationale string             `json:"rationale"`
}

func (a *aiWeights) Validate() error {
	w := model.WeightVector{}
	for k, v := range a.Weights {
		w[model.Dimension(strings.ToLower(k))] = v
	}
	for _, d := range model.AllDimensions() {
		if _, ok := w[d]; !ok {
			return eris.Errorf("missing weight for %s", d)
		}
	}
	return ValidateWeights(w, aiTolerance)
}

func (a *aiWeights) vector() model.WeightVector {
	w := model.WeightVector{}
	for k, v := range a.Weights {
		w[model.Dimension(strings.ToLower(k))] = v
	}
	return Renormalize(w, model.AllDimensions())
}

// Weights returns the vector to grade with. Any AI failure yields the
// default vector and a warning. An empty industry skips the AI call.
func (w *Weigher) Weights(ctx context.Context, industry string) (model.WeightVector, model.WeightSource, []model.Warning) {
	industry = strings.TrimSpace(industry)
	if w.svc == nil || industry == "" {
		return w.cfg.Default.Clone(), model.WeightsDefault, nil
	}

	resp, err := inference.Call[aiWeights](ctx, w.svc, w.rec, inference.Request{
		Operation: Operation,
		Model:     w.cfg.Model,
		System:    "You calibrate website audit scoring for different industries.",
		Prompt:    weightsPrompt(industry, w.cfg.Default),
		MaxTokens: w.cfg.MaxTokens,
	})
	if err != nil {
		zap.L().Warn("grading: ai weighting failed, using defaults",
			zap.String("industry", industry),
			zap.Error(err),
		)
		return w.cfg.Default.Clone(), model.WeightsDefault, []model.Warning{{
			Stage:   model.StageWeighting,
			Subject: industry,
			Reason:  fmt.Sprintf("ai weighting failed (%s), using default weights", inference.Kind(err)),
		}}
	}
	return resp.vector(), model.WeightsAI, nil
}

func weightsPrompt(industry string, def model.WeightVector) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A website audit scores five dimensions. Choose weights for a business in the %q industry.\n", industry)
	b.WriteString("Default weights:\n")
	for _, d := range model.AllDimensions() {
		fmt.Fprintf(&b, "- %s: %.2f\n", d, def[d])
	}
	b.WriteString("\nRespond with a valid JSON object only:\n")
	b.WriteString(`{"weights": {"design": <0-1>, "seo": <0-1>, "content": <0-1>, "social": <0-1>, "accessibility": <0-1>}, "rationale": "<one sentence>"}`)
	b.WriteString("\nAll five weights are required and must sum to 1.0.")
	return b.String()
}
