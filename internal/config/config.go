package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/belivan/MaxantAgency-sub002/internal/cost"
	"github.com/belivan/MaxantAgency-sub002/internal/grading"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Inference   InferenceConfig   `yaml:"inference" mapstructure:"inference"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
	Browser     BrowserConfig     `yaml:"browser" mapstructure:"browser"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore" mapstructure:"objectstore"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Grading     GradingConfig     `yaml:"grading" mapstructure:"grading"`
	Lead        LeadConfig        `yaml:"lead" mapstructure:"lead"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Driver is sqlite, postgres
// or none.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings. FastModel serves the
// cheap structured calls (triage, weighting); Model serves analysis and
// synthesis.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	FastModel   string `yaml:"fast_model" mapstructure:"fast_model"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// InferenceConfig holds the shared retry and breaker policy for AI calls.
type InferenceConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// DiscoveryConfig controls the same-origin crawl.
type DiscoveryConfig struct {
	MaxDepth          int      `yaml:"max_depth" mapstructure:"max_depth"`
	MaxPages          int      `yaml:"max_pages" mapstructure:"max_pages"`
	FetchTimeoutSecs  int      `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	RequestsPerSecond float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int      `yaml:"burst" mapstructure:"burst"`
	ExcludePaths      []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	SeedSitemap       bool     `yaml:"seed_sitemap" mapstructure:"seed_sitemap"`
	UserAgent         string   `yaml:"user_agent" mapstructure:"user_agent"`
}

// BrowserConfig configures the headless Chrome pool.
type BrowserConfig struct {
	PoolSize            int    `yaml:"pool_size" mapstructure:"pool_size"`
	RemoteURL           string `yaml:"remote_url" mapstructure:"remote_url"`
	BinPath             string `yaml:"bin_path" mapstructure:"bin_path"`
	Stealth             bool   `yaml:"stealth" mapstructure:"stealth"`
	NoSandbox           bool   `yaml:"no_sandbox" mapstructure:"no_sandbox"`
	AcquireTimeoutSecs  int    `yaml:"acquire_timeout_secs" mapstructure:"acquire_timeout_secs"`
	NavigateTimeoutSecs int    `yaml:"navigate_timeout_secs" mapstructure:"navigate_timeout_secs"`
}

// ObjectStoreConfig selects where screenshots go. Driver is fs, s3 or none.
type ObjectStoreConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Region   string `yaml:"region" mapstructure:"region"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// PipelineConfig holds per-run defaults.
type PipelineConfig struct {
	PageBudget          int           `yaml:"page_budget" mapstructure:"page_budget"`
	CaptureConcurrency  int           `yaml:"capture_concurrency" mapstructure:"capture_concurrency"`
	AnalyzerConcurrency int           `yaml:"analyzer_concurrency" mapstructure:"analyzer_concurrency"`
	MaxCostUSD          float64       `yaml:"max_cost_usd" mapstructure:"max_cost_usd"`
	GracePeriodSecs     int           `yaml:"grace_period_secs" mapstructure:"grace_period_secs"`
	MaxTextPages        int           `yaml:"max_text_pages" mapstructure:"max_text_pages"`
	MaxIssues           int           `yaml:"max_issues" mapstructure:"max_issues"`
	StageTimeouts       StageTimeouts `yaml:"stage_timeouts" mapstructure:"stage_timeouts"`
}

// StageTimeouts bounds each pipeline stage, in seconds.
type StageTimeouts struct {
	Discovery int `yaml:"discovery" mapstructure:"discovery"`
	Triage    int `yaml:"triage" mapstructure:"triage"`
	Capture   int `yaml:"capture" mapstructure:"capture"`
	Analyze   int `yaml:"analyze" mapstructure:"analyze"`
	Weighting int `yaml:"weighting" mapstructure:"weighting"`
	Synthesis int `yaml:"synthesis" mapstructure:"synthesis"`
}

// GradingConfig holds the default weight vector and letter bands.
type GradingConfig struct {
	Weights map[string]float64 `yaml:"weights" mapstructure:"weights"`
	Bands   map[string]float64 `yaml:"bands" mapstructure:"bands"`
}

// LeadConfig points at the YAML lead profile.
type LeadConfig struct {
	ProfilePath string `yaml:"profile_path" mapstructure:"profile_path"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Browser   BrowserPricing          `yaml:"browser" mapstructure:"browser"`
	Storage   StoragePricing          `yaml:"storage" mapstructure:"storage"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

type BrowserPricing struct {
	PerPage float64 `yaml:"per_page" mapstructure:"per_page"`
}

type StoragePricing struct {
	PerPut float64 `yaml:"per_put" mapstructure:"per_put"`
}

type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	MaxConcurrentRuns int      `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownSecs      int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
}

// MonitoringConfig configures the run-history alert checker of serve.
type MonitoringConfig struct {
	Enabled                 bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	IncompleteRateThreshold float64 `yaml:"incomplete_rate_threshold" mapstructure:"incomplete_rate_threshold"`
	CostThresholdUSD        float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	HotLeadAlerts           bool    `yaml:"hot_lead_alerts" mapstructure:"hot_lead_alerts"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SITEAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "site-audit.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.fast_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("inference.max_attempts", 2)
	v.SetDefault("inference.timeout_secs", 60)
	v.SetDefault("inference.breaker_threshold", 5)
	v.SetDefault("inference.breaker_reset_secs", 30)
	v.SetDefault("discovery.max_depth", 2)
	v.SetDefault("discovery.max_pages", 50)
	v.SetDefault("discovery.fetch_timeout_secs", 15)
	v.SetDefault("discovery.requests_per_second", 4.0)
	v.SetDefault("discovery.burst", 2)
	v.SetDefault("discovery.exclude_paths", []string{"/blog/*", "/news/*", "/press/*", "/careers/*", "/tag/*", "/category/*"})
	v.SetDefault("discovery.seed_sitemap", true)
	v.SetDefault("browser.pool_size", 3)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.acquire_timeout_secs", 60)
	v.SetDefault("browser.navigate_timeout_secs", 30)
	v.SetDefault("objectstore.driver", "fs")
	v.SetDefault("objectstore.dir", "screenshots")
	v.SetDefault("objectstore.region", "us-east-1")
	v.SetDefault("pipeline.page_budget", 5)
	v.SetDefault("pipeline.capture_concurrency", 3)
	v.SetDefault("pipeline.analyzer_concurrency", 5)
	v.SetDefault("pipeline.max_cost_usd", 0.0)
	v.SetDefault("pipeline.grace_period_secs", 10)
	v.SetDefault("pipeline.max_text_pages", 4)
	v.SetDefault("pipeline.max_issues", 10)
	v.SetDefault("pipeline.stage_timeouts.discovery", 120)
	v.SetDefault("pipeline.stage_timeouts.triage", 60)
	v.SetDefault("pipeline.stage_timeouts.capture", 300)
	v.SetDefault("pipeline.stage_timeouts.analyze", 180)
	v.SetDefault("pipeline.stage_timeouts.weighting", 30)
	v.SetDefault("pipeline.stage_timeouts.synthesis", 90)
	v.SetDefault("grading.weights", map[string]float64{
		"design": 0.30, "seo": 0.25, "content": 0.20, "social": 0.10, "accessibility": 0.15,
	})
	v.SetDefault("grading.bands", map[string]float64{"A": 90, "B": 75, "C": 60, "D": 45})
	v.SetDefault("pricing.browser.per_page", 0.002)
	v.SetDefault("pricing.storage.per_put", 0.000005)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent_runs", 2)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_secs", 30)
	v.SetDefault("monitoring.incomplete_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 25.0)
	v.SetDefault("monitoring.hot_lead_alerts", true)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts. mode is
// analyze, serve or runs.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "analyze", "serve":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Pipeline.PageBudget < 1 {
			errs = append(errs, "pipeline.page_budget must be >= 1")
		}
		if c.Pipeline.MaxCostUSD < 0 {
			errs = append(errs, "pipeline.max_cost_usd must be >= 0")
		}
		if c.Browser.PoolSize < 1 {
			errs = append(errs, "browser.pool_size must be >= 1")
		}
		switch c.ObjectStore.Driver {
		case "fs", "none":
		case "s3":
			if c.ObjectStore.Bucket == "" {
				errs = append(errs, "objectstore.bucket is required for the s3 driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("objectstore.driver %q is not one of fs, s3, none", c.ObjectStore.Driver))
		}
		if _, err := c.Grading.WeightVector(); err != nil {
			errs = append(errs, err.Error())
		}
		if mode == "serve" {
			if c.Server.Port <= 0 {
				errs = append(errs, "server.port must be > 0")
			}
			if c.Server.MaxConcurrentRuns < 1 || c.Server.MaxConcurrentRuns > 50 {
				errs = append(errs, "server.max_concurrent_runs must be between 1 and 50")
			}
			if c.Store.Driver == "none" {
				errs = append(errs, "store.driver must not be none when serving")
			}
		}
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver must not be none")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "none":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WeightVector returns the configured default weights, normalized.
func (g GradingConfig) WeightVector() (model.WeightVector, error) {
	if len(g.Weights) == 0 {
		return grading.DefaultWeights(), nil
	}
	w := model.WeightVector{}
	for k, v := range g.Weights {
		w[model.Dimension(strings.ToLower(k))] = v
	}
	out, err := grading.Normalize(w)
	if err != nil {
		return nil, eris.Wrap(err, "config: grading.weights")
	}
	return out, nil
}

// LetterBands returns the configured bands, highest minimum first.
func (g GradingConfig) LetterBands() []grading.Band {
	if len(g.Bands) == 0 {
		return grading.DefaultBands()
	}
	bands := make([]grading.Band, 0, len(g.Bands))
	for letter, minScore := range g.Bands {
		bands = append(bands, grading.Band{Letter: strings.ToUpper(letter), Min: minScore})
	}
	sort.Slice(bands, func(i, j int) bool {
		if bands[i].Min != bands[j].Min {
			return bands[i].Min > bands[j].Min
		}
		return bands[i].Letter < bands[j].Letter
	})
	return bands
}

// Rates converts the pricing section into calculator rates. Models with no
// configured price fall back to the built-in table.
func (p PricingConfig) Rates() cost.Rates {
	rates := cost.DefaultRates()
	for id, mp := range p.Anthropic {
		rates.Anthropic[id] = cost.ModelRate{
			Input:         mp.Input,
			Output:        mp.Output,
			CacheWriteMul: mp.CacheWriteMul,
			CacheReadMul:  mp.CacheReadMul,
		}
	}
	rates.Browser.PerPage = p.Browser.PerPage
	rates.Storage.PerPut = p.Storage.PerPut
	return rates
}

// Seconds converts a configured second count to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
