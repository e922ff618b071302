package inference

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/cost"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/resilience"
	"github.com/belivan/MaxantAgency-sub002/pkg/anthropic"
)

const defaultMaxTokens = 2048

// AnthropicService implements Service on top of the Anthropic client.
type AnthropicService struct {
	client       anthropic.Client
	calc         *cost.Calculator
	defaultModel string
	now          func() time.Time
}

// NewAnthropicService creates a Service. defaultModel is used for requests
// that leave Model empty.
func NewAnthropicService(client anthropic.Client, calc *cost.Calculator, defaultModel string) *AnthropicService {
	return &AnthropicService{
		client:       client,
		calc:         calc,
		defaultModel: defaultModel,
		now:          time.Now,
	}
}

// Invoke sends one message and classifies any failure.
func (s *AnthropicService) Invoke(ctx context.Context, req Request) (*Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = s.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	msg := anthropic.Message{Role: "user", Content: req.Prompt}
	for _, img := range req.Images {
		msg.Images = append(msg.Images, anthropic.Image{MediaType: img.MediaType, Data: img.Data})
	}

	start := s.now()
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(req.System, ""),
		Messages:    []anthropic.Message{msg},
		Temperature: req.Temperature,
	})
	latency := s.now().Sub(start)
	if err != nil {
		return nil, classify(req.Operation, err)
	}

	usage := model.TokenUsage{
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
	}
	out := &Response{
		Text:    strings.TrimSpace(resp.Text()),
		Model:   modelID,
		Usage:   usage,
		Latency: latency,
	}
	if s.calc != nil {
		out.CostUSD = s.calc.Claude(modelID, usage)
	}

	zap.L().Debug("inference: call complete",
		zap.String("operation", req.Operation),
		zap.String("model", modelID),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("cost_usd", out.CostUSD),
		zap.Duration("latency", latency),
	)

	if out.Text == "" {
		return out, eris.Wrapf(ErrMalformedResponse, "%s: empty response", req.Operation)
	}
	return out, nil
}

// classify maps a client error onto the taxonomy. Rate limits and 5xx are
// also marked transient so the retry policy picks them up.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrapf(ErrTimeout, "%s: %v", op, err)
	}

	status := anthropic.APIStatus(err)
	switch {
	case status == http.StatusTooManyRequests:
		return resilience.NewTransientError(eris.Wrapf(ErrRateLimited, "%s: %v", op, err), status)
	case status >= 500:
		return resilience.NewTransientError(eris.Wrapf(ErrProvider, "%s: status %d: %v", op, status, err), status)
	case status == 0 && resilience.IsTransient(err):
		return resilience.NewTransientError(eris.Wrapf(ErrProvider, "%s: %v", op, err), 0)
	}
	return eris.Wrapf(ErrProvider, "%s: %v", op, err)
}
