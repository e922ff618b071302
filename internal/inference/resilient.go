package inference

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/resilience"
)

// Resilient wraps a Service with the shared retry policy and a provider
// circuit breaker. Only rate limits and transient provider errors are
// retried; timeouts and malformed responses go straight to the caller's
// fallback.
type Resilient struct {
	next    Service
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// NewResilient decorates next. A nil breaker disables circuit breaking.
func NewResilient(next Service, policy resilience.Policy, breaker *resilience.Breaker) *Resilient {
	policy.ShouldRetry = resilience.IsTransient
	if policy.OnRetry == nil {
		policy = policy.WithLogger("anthropic", "invoke")
	}
	return &Resilient{next: next, policy: policy, breaker: breaker}
}

// NewProviderBreaker returns a breaker that trips on provider, rate-limit
// and timeout failures but ignores malformed responses.
func NewProviderBreaker(cfg resilience.BreakerConfig) *resilience.Breaker {
	cfg.ShouldTrip = func(err error) bool {
		return err != nil && !eris.Is(err, ErrMalformedResponse)
	}
	return resilience.NewBreaker(cfg)
}

// Invoke runs the call under the policy. The returned response carries
// the usage and cost of every attempt, including failed ones that still
// consumed tokens.
func (r *Resilient) Invoke(ctx context.Context, req Request) (*Response, error) {
	var (
		spent Response
		seen  bool
	)
	call := func(ctx context.Context) (*Response, error) {
		return resilience.DoVal(ctx, r.policy, func(ctx context.Context) (*Response, error) {
			resp, err := r.next.Invoke(ctx, req)
			if resp != nil {
				spent.Text, spent.Model = resp.Text, resp.Model
				spent.Usage.Add(resp.Usage)
				spent.CostUSD += resp.CostUSD
				spent.Latency += resp.Latency
				seen = true
			}
			return resp, err
		})
	}
	accounted := func() *Response {
		if !seen {
			return nil
		}
		out := spent
		return &out
	}

	var err error
	if r.breaker != nil {
		_, err = resilience.ExecuteVal(ctx, r.breaker, call)
	} else {
		_, err = call(ctx)
	}

	switch {
	case err == nil:
		return accounted(), nil
	case resilience.IsTimeout(err):
		return accounted(), eris.Wrapf(ErrTimeout, "%s: %v", req.Operation, err)
	case eris.Is(err, resilience.ErrCircuitOpen):
		return nil, eris.Wrapf(ErrProvider, "%s: %v", req.Operation, err)
	}
	return accounted(), err
}
