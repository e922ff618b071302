package cost

import "github.com/belivan/MaxantAgency-sub002/internal/model"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Browser   BrowserRate          `yaml:"browser" mapstructure:"browser"`
	Storage   StorageRate          `yaml:"storage" mapstructure:"storage"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// BrowserRate prices headless capture by rendered page.
type BrowserRate struct {
	PerPage float64 `yaml:"per_page" mapstructure:"per_page"`
}

// StorageRate prices object store writes.
type StorageRate struct {
	PerPut float64 `yaml:"per_put" mapstructure:"per_put"`
}

// Calculator computes costs for external operations.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(modelID string, usage model.TokenUsage) float64 {
	rate, ok := c.rates.Anthropic[modelID]
	if !ok {
		return 0
	}

	inCost := (float64(usage.InputTokens) / 1e6) * rate.Input
	outCost := (float64(usage.OutputTokens) / 1e6) * rate.Output
	cwCost := (float64(usage.CacheCreationTokens) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(usage.CacheReadTokens) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Capture returns the cost of rendering the given number of pages.
func (c *Calculator) Capture(pages int) float64 {
	return float64(pages) * c.rates.Browser.PerPage
}

// Put returns the cost of the given number of object store writes.
func (c *Calculator) Put(objects int) float64 {
	return float64(objects) * c.rates.Storage.PerPut
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Browser: BrowserRate{PerPage: 0},
		Storage: StorageRate{PerPut: 0.000005},
	}
}
