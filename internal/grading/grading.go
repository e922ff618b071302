// Package grading combines dimension scores into an overall grade.
package grading

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// ErrNoDimensions is returned when no dimension produced a score.
var ErrNoDimensions = eris.New("grading: no dimension scores")

// Band maps a minimum score to a letter grade.
type Band struct {
	Letter string  `mapstructure:"letter" json:"letter"`
	Min    float64 `mapstructure:"min" json:"min"`
}

// FailingLetter is assigned below the lowest band.
const FailingLetter = "F"

// DefaultWeights returns the standard weight vector.
func DefaultWeights() model.WeightVector {
	return model.WeightVector{
		model.DimensionDesign:        0.30,
		model.DimensionSEO:           0.25,
		model.DimensionContent:       0.20,
		model.DimensionSocial:        0.10,
		model.DimensionAccessibility: 0.15,
	}
}

// DefaultBands returns the standard letter bands.
func DefaultBands() []Band {
	return []Band{
		{Letter: "A", Min: 90},
		{Letter: "B", Min: 75},
		{Letter: "C", Min: 60},
		{Letter: "D", Min: 45},
	}
}

// Result is the outcome of grading.
type Result struct {
	Score float64
	Grade string
	// Weights is the vector actually applied, renormalized over the
	// dimensions that produced a score.
	Weights model.WeightVector
}

// Grade computes the weighted overall score of the present dimensions.
// Weights of absent dimensions are redistributed proportionally; when every
// present weight is zero the present dimensions share equally. nil bands
// use DefaultBands.
func Grade(scores map[model.Dimension]model.DimensionScore, weights model.WeightVector, bands []Band) (Result, error) {
	var present []model.Dimension
	for _, d := range model.AllDimensions() {
		if _, ok := scores[d]; ok {
			present = append(present, d)
		}
	}
	if len(present) == 0 {
		return Result{}, ErrNoDimensions
	}

	applied := Renormalize(weights, present)
	var total float64
	for _, d := range present {
		total += applied[d] * scores[d].Score
	}
	total = math.Round(math.Max(0, math.Min(100, total))*10) / 10

	return Result{
		Score:   total,
		Grade:   Letter(total, bands),
		Weights: applied,
	}, nil
}

// Renormalize restricts w to dims and scales it to sum to 1. Negative
// weights count as zero.
func Renormalize(w model.WeightVector, dims []model.Dimension) model.WeightVector {
	out := make(model.WeightVector, len(dims))
	var sum float64
	for _, d := range dims {
		v := math.Max(0, w[d])
		out[d] = v
		sum += v
	}
	if sum == 0 {
		for _, d := range dims {
			out[d] = 1 / float64(len(dims))
		}
		return out
	}
	for _, d := range dims {
		out[d] /= sum
	}
	return out
}

// Letter returns the grade for score under bands.
func Letter(score float64, bands []Band) string {
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min > sorted[j].Min })
	for _, b := range sorted {
		if score >= b.Min {
			return b.Letter
		}
	}
	return FailingLetter
}

// ValidateWeights checks that w names only known dimensions, has no
// negative entries and sums to 1 within tol.
func ValidateWeights(w model.WeightVector, tol float64) error {
	if len(w) == 0 {
		return eris.New("empty weight vector")
	}
	for d, v := range w {
		if !d.Valid() {
			return eris.Errorf("unknown dimension %q", d)
		}
		if v < 0 || math.IsNaN(v) {
			return eris.Errorf("weight for %s is negative", d)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > tol {
		return eris.Errorf("weights sum to %.3f", sum)
	}
	return nil
}

// ParseWeights reads "design=0.4,seo=0.3,..." into a normalized vector.
func ParseWeights(s string) (model.WeightVector, error) {
	out := model.WeightVector{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, eris.Errorf("grading: malformed weight %q", part)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "grading: weight %q", part)
		}
		out[model.Dimension(strings.ToLower(strings.TrimSpace(k)))] = f
	}
	return Normalize(out)
}

// Normalize validates w and scales it to sum to 1. Dimensions missing from
// w get zero weight.
func Normalize(w model.WeightVector) (model.WeightVector, error) {
	sum := 0.0
	for d, v := range w {
		if !d.Valid() {
			return nil, eris.Errorf("grading: unknown dimension %q", d)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, eris.Errorf("grading: invalid weight for %s", d)
		}
		sum += v
	}
	if sum == 0 {
		return nil, eris.New("grading: weights sum to zero")
	}
	return Renormalize(w, model.AllDimensions()), nil
}
