package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "site-audit.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Discovery.MaxDepth)
	assert.Equal(t, 50, cfg.Discovery.MaxPages)
	assert.True(t, cfg.Discovery.SeedSitemap)
	assert.Contains(t, cfg.Discovery.ExcludePaths, "/blog/*")
	assert.Equal(t, 3, cfg.Browser.PoolSize)
	assert.True(t, cfg.Browser.Stealth)
	assert.Equal(t, "fs", cfg.ObjectStore.Driver)
	assert.Equal(t, 5, cfg.Pipeline.PageBudget)
	assert.Equal(t, 3, cfg.Pipeline.CaptureConcurrency)
	assert.Equal(t, 5, cfg.Pipeline.AnalyzerConcurrency)
	assert.Equal(t, 90, cfg.Pipeline.StageTimeouts.Synthesis)
	assert.Equal(t, 2, cfg.Inference.MaxAttempts)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.FastModel)
	assert.InDelta(t, 0.30, cfg.Grading.Weights["design"], 0.001)
	bands := cfg.Grading.LetterBands()
	require.Len(t, bands, 4)
	assert.Equal(t, "A", bands[0].Letter)
	assert.InDelta(t, 90, bands[0].Min, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/audit
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  page_budget: 8
grading:
  weights:
    design: 1
    seo: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Pipeline.PageBudget)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Discovery.MaxPages)

	w, err := cfg.Grading.WeightVector()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, w[model.DimensionDesign], 1e-9)
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SITEAUDIT_STORE_DRIVER", "postgres")
	t.Setenv("SITEAUDIT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SITEAUDIT_SERVER_PORT", "3000")
	t.Setenv("SITEAUDIT_PIPELINE_MAX_COST_USD", "0.75")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 0.75, cfg.Pipeline.MaxCostUSD, 1e-9)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "audit.db"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Browser.PoolSize = 3
	cfg.ObjectStore.Driver = "fs"
	cfg.Pipeline.PageBudget = 5
	cfg.Server.Port = 8080
	cfg.Server.MaxConcurrentRuns = 2
	return cfg
}

func TestValidateAnalyze_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("analyze"))
}

func TestValidateAnalyze_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Store.DatabaseURL = ""
	cfg.Pipeline.PageBudget = 0

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "pipeline.page_budget must be >= 1")
}

func TestValidateAnalyze_S3NeedsBucket(t *testing.T) {
	cfg := validDefaults()
	cfg.ObjectStore.Driver = "s3"
	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "objectstore.bucket")

	cfg.ObjectStore.Bucket = "shots"
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateAnalyze_BadWeights(t *testing.T) {
	cfg := validDefaults()
	cfg.Grading.Weights = map[string]float64{"design": -1}
	assert.Error(t, cfg.Validate("analyze"))

	cfg.Grading.Weights = map[string]float64{"speed": 1}
	assert.Error(t, cfg.Validate("analyze"))
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	cfg.Server.Port = 8080
	cfg.Server.MaxConcurrentRuns = 51
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_runs must be between 1 and 50")

	cfg.Server.MaxConcurrentRuns = 2
	cfg.Store.Driver = "none"
	assert.Error(t, cfg.Validate("serve"))
}

func TestValidateRuns(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	assert.NoError(t, cfg.Validate("runs"))

	cfg.Store.Driver = "none"
	assert.Error(t, cfg.Validate("runs"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestLetterBands(t *testing.T) {
	g := GradingConfig{Bands: map[string]float64{"b": 70, "a": 85, "c": 50}}
	bands := g.LetterBands()
	require.Len(t, bands, 3)
	assert.Equal(t, "A", bands[0].Letter)
	assert.Equal(t, 85.0, bands[0].Min)
	assert.Equal(t, "C", bands[2].Letter)

	assert.Len(t, GradingConfig{}.LetterBands(), 4)
}

func TestPricingRates(t *testing.T) {
	p := PricingConfig{
		Anthropic: map[string]ModelPricing{"claude-test": {Input: 1, Output: 2}},
		Browser:   BrowserPricing{PerPage: 0.01},
		Storage:   StoragePricing{PerPut: 0.001},
	}
	rates := p.Rates()
	assert.Equal(t, 1.0, rates.Anthropic["claude-test"].Input)
	assert.Contains(t, rates.Anthropic, "claude-haiku-4-5-20251001")
	assert.Equal(t, 0.01, rates.Browser.PerPage)
	assert.Equal(t, 0.001, rates.Storage.PerPut)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 90*time.Second, Seconds(90))
}
