// Package inference defines the contract every AI call in a run goes
// through: structured input, schema-validated output, cost and latency
// accounting, and a small error taxonomy that callers map to fallbacks.
package inference

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Error taxonomy. Every failure returned by a Service matches exactly one
// of these via eris.Is.
var (
	ErrTimeout           = eris.New("inference: timeout")
	ErrRateLimited       = eris.New("inference: rate limited")
	ErrMalformedResponse = eris.New("inference: malformed response")
	ErrProvider          = eris.New("inference: provider error")
)

// Image is an attachment for vision requests.
type Image struct {
	MediaType string
	Data      []byte
}

// Request is one inference call.
type Request struct {
	// Operation names the call in the cost ledger (e.g. "triage", "analyze.design").
	Operation   string
	Model       string
	System      string
	Prompt      string
	Images      []Image
	MaxTokens   int64
	Temperature *float64
}

// Response is the raw text output of a call plus its accounting.
type Response struct {
	Text    string
	Model   string
	Usage   model.TokenUsage
	CostUSD float64
	Latency time.Duration
}

// Service performs inference calls.
type Service interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Recorder receives one ledger entry per call. *cost.Ledger satisfies it.
type Recorder interface {
	Append(e model.CostEntry) float64
}

// Kind returns a short label for err's taxonomy class, for warnings.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case eris.Is(err, ErrTimeout):
		return "timeout"
	case eris.Is(err, ErrRateLimited):
		return "rate-limited"
	case eris.Is(err, ErrMalformedResponse):
		return "malformed-response"
	default:
		return "provider"
	}
}
