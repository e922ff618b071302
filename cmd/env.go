package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/analyzer"
	"github.com/belivan/MaxantAgency-sub002/internal/browser"
	"github.com/belivan/MaxantAgency-sub002/internal/capture"
	"github.com/belivan/MaxantAgency-sub002/internal/config"
	"github.com/belivan/MaxantAgency-sub002/internal/cost"
	"github.com/belivan/MaxantAgency-sub002/internal/discovery"
	"github.com/belivan/MaxantAgency-sub002/internal/grading"
	"github.com/belivan/MaxantAgency-sub002/internal/inference"
	"github.com/belivan/MaxantAgency-sub002/internal/leadscore"
	"github.com/belivan/MaxantAgency-sub002/internal/objectstore"
	"github.com/belivan/MaxantAgency-sub002/internal/pipeline"
	"github.com/belivan/MaxantAgency-sub002/internal/resilience"
	"github.com/belivan/MaxantAgency-sub002/internal/store"
	"github.com/belivan/MaxantAgency-sub002/internal/synthesis"
	"github.com/belivan/MaxantAgency-sub002/internal/triage"
	anthropicpkg "github.com/belivan/MaxantAgency-sub002/pkg/anthropic"
)

// pipelineEnv holds the store, browser pool and pipeline needed by the
// analyze and serve commands.
type pipelineEnv struct {
	Store    store.Store // nil when store.driver is none
	Pipeline *pipeline.Pipeline
	browsers *browser.Pool
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.browsers != nil {
		if err := pe.browsers.Close(); err != nil {
			zap.L().Warn("close browser pool", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured store. It returns nil for the
// none driver.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "site-audit.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initObjectStore returns the screenshot store, or nil for the none driver.
func initObjectStore(ctx context.Context) (objectstore.Store, error) {
	switch cfg.ObjectStore.Driver {
	case "fs":
		return objectstore.NewFSStore(cfg.ObjectStore.Dir)
	case "s3":
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:   cfg.ObjectStore.Bucket,
			Region:   cfg.ObjectStore.Region,
			Prefix:   cfg.ObjectStore.Prefix,
			Endpoint: cfg.ObjectStore.Endpoint,
		})
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported objectstore driver: %s", cfg.ObjectStore.Driver)
	}
}

// initInference builds the Anthropic-backed service behind the shared retry
// policy and provider breaker.
func initInference(calc *cost.Calculator) inference.Service {
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	svc := inference.NewAnthropicService(client, calc, cfg.Anthropic.Model)

	policy := resilience.FromConfig(cfg.Inference.MaxAttempts, cfg.Inference.TimeoutSecs*1000, 0, 0, 0)

	breakerCfg := resilience.DefaultBreakerConfig()
	if cfg.Inference.BreakerThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.Inference.BreakerThreshold
	}
	if cfg.Inference.BreakerResetSecs > 0 {
		breakerCfg.ResetTimeout = config.Seconds(cfg.Inference.BreakerResetSecs)
	}
	breakerCfg.OnStateChange = func(from, to resilience.BreakerState) {
		zap.L().Warn("inference breaker state change",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return inference.NewResilient(svc, policy, inference.NewProviderBreaker(breakerCfg))
}

// initBrowsers launches Chrome and wraps it in a session pool.
func initBrowsers() (*browser.Pool, error) {
	b, err := browser.Launch(browser.Config{
		RemoteURL: cfg.Browser.RemoteURL,
		BinPath:   cfg.Browser.BinPath,
		Stealth:   cfg.Browser.Stealth,
		NoSandbox: cfg.Browser.NoSandbox,
	})
	if err != nil {
		return nil, err
	}
	return browser.NewPool(cfg.Browser.PoolSize, b.NewSession, b), nil
}

// pipelineConfig maps the loaded configuration onto the pipeline's static
// settings.
func pipelineConfig(c *config.Config) (pipeline.Config, error) {
	weights, err := c.Grading.WeightVector()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		MaxDepth:      c.Discovery.MaxDepth,
		MaxCandidates: c.Discovery.MaxPages,
		Triage: triage.Config{
			Model:     c.Anthropic.FastModel,
			MaxTokens: c.Anthropic.MaxTokens,
		},
		Capture: capture.Config{
			Concurrency:     c.Pipeline.CaptureConcurrency,
			AcquireTimeout:  config.Seconds(c.Browser.AcquireTimeoutSecs),
			NavigateTimeout: config.Seconds(c.Browser.NavigateTimeoutSecs),
		},
		Analyzer: analyzer.Config{
			Model:        c.Anthropic.Model,
			VisionModel:  c.Anthropic.VisionModel,
			MaxTokens:    c.Anthropic.MaxTokens,
			MaxTextPages: c.Pipeline.MaxTextPages,
		},
		Weigher: grading.WeigherConfig{
			Model:   c.Anthropic.FastModel,
			Default: weights,
		},
		Synthesis: synthesis.Config{
			Model:     c.Anthropic.Model,
			MaxTokens: c.Anthropic.MaxTokens,
			MaxIssues: c.Pipeline.MaxIssues,
		},
		Bands: c.Grading.LetterBands(),
	}, nil
}

// runOptions returns the per-run defaults from configuration.
func runOptions(c *config.Config) pipeline.Options {
	t := c.Pipeline.StageTimeouts
	return pipeline.Options{
		CaptureConcurrency:  c.Pipeline.CaptureConcurrency,
		AnalyzerConcurrency: c.Pipeline.AnalyzerConcurrency,
		MaxCostUSD:          c.Pipeline.MaxCostUSD,
		GracePeriod:         config.Seconds(c.Pipeline.GracePeriodSecs),
		Timeouts: pipeline.Timeouts{
			Discovery: config.Seconds(t.Discovery),
			Triage:    config.Seconds(t.Triage),
			Capture:   config.Seconds(t.Capture),
			Analyze:   config.Seconds(t.Analyze),
			Weighting: config.Seconds(t.Weighting),
			Synthesis: config.Seconds(t.Synthesis),
		},
	}
}

// initPipeline validates configuration for mode, then sets up the store,
// object store, inference service and browser pool and builds the Pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pcfg, err := pipelineConfig(cfg)
	if err != nil {
		return nil, err
	}

	profile := leadscore.DefaultProfile()
	if cfg.Lead.ProfilePath != "" {
		profile, err = leadscore.LoadProfile(cfg.Lead.ProfilePath)
		if err != nil {
			return nil, err
		}
	}

	env := &pipelineEnv{}
	env.Store, err = initStore(ctx)
	if err != nil {
		return nil, err
	}

	objects, err := initObjectStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.browsers, err = initBrowsers()
	if err != nil {
		env.Close()
		return nil, err
	}

	calc := cost.NewCalculator(cfg.Pricing.Rates())
	crawler := discovery.NewCrawler(discovery.Config{
		FetchTimeout:      config.Seconds(cfg.Discovery.FetchTimeoutSecs),
		RequestsPerSecond: cfg.Discovery.RequestsPerSecond,
		Burst:             cfg.Discovery.Burst,
		ExcludePaths:      cfg.Discovery.ExcludePaths,
		SeedSitemap:       cfg.Discovery.SeedSitemap,
		UserAgent:         cfg.Discovery.UserAgent,
	}, resilience.DefaultPolicy().WithLogger("discovery", "fetch"))

	env.Pipeline = pipeline.New(pcfg, crawler, initInference(calc), env.browsers, objects, env.Store, calc,
		leadscore.NewScorer(profile))

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("objectstore", cfg.ObjectStore.Driver),
		zap.Int("browser_pool", env.browsers.Size()),
	)
	return env, nil
}
