// Package capture renders selected pages in a headless browser, stores
// their screenshots and extracts the signals analyzers consume.
package capture

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/belivan/MaxantAgency-sub002/internal/browser"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/objectstore"
)

// ErrNoPagesCaptured means every selected page failed to capture.
var ErrNoPagesCaptured = eris.New("capture: no pages captured")

// Pool leases browser sessions. *browser.Pool satisfies it.
type Pool interface {
	Acquire(ctx context.Context, timeout time.Duration) (browser.Session, error)
	Release(s browser.Session)
}

// Config bounds capture concurrency and per-step timeouts.
type Config struct {
	Concurrency       int
	AcquireTimeout    time.Duration
	NavigateTimeout   time.Duration
	ScreenshotTimeout time.Duration
	UploadTimeout     time.Duration
}

// DefaultConfig returns the standard capture settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:       3,
		AcquireTimeout:    60 * time.Second,
		NavigateTimeout:   30 * time.Second,
		ScreenshotTimeout: 15 * time.Second,
		UploadTimeout:     20 * time.Second,
	}
}

// Stats counts work done by one CaptureAll call, for cost accounting.
type Stats struct {
	Rendered int
	Uploaded int
}

// Capturer captures pages through a shared browser pool.
type Capturer struct {
	pool  Pool
	store objectstore.Store
	cfg   Config
}

// NewCapturer creates a Capturer. store may be nil, in which case
// screenshots stay in memory only.
func NewCapturer(pool Pool, store objectstore.Store, cfg Config) *Capturer {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = def.NavigateTimeout
	}
	if cfg.ScreenshotTimeout <= 0 {
		cfg.ScreenshotTimeout = def.ScreenshotTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = def.UploadTimeout
	}
	return &Capturer{pool: pool, store: store, cfg: cfg}
}

type pageOutcome struct {
	capture  *model.PageCapture
	warnings []model.Warning
	uploaded int
}

// CaptureAll captures pages with bounded concurrency. The returned captures
// follow the order of pages; failed pages are omitted and reported as
// warnings. Navigation failures are not retried.
func (c *Capturer) CaptureAll(ctx context.Context, runID string, pages []model.SelectedPage) ([]model.PageCapture, []model.Warning, Stats) {
	outcomes := make([]pageOutcome, len(pages))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, page := range pages {
		g.Go(func() error {
			if gCtx.Err() != nil {
				outcomes[i].warnings = []model.Warning{{
					Stage: model.StageCapture, Subject: page.URL, Reason: "skipped: run cancelled",
				}}
				return nil
			}
			outcomes[i] = c.captureOne(gCtx, runID, page)
			return nil
		})
	}
	_ = g.Wait()

	var (
		captures []model.PageCapture
		warnings []model.Warning
		stats    Stats
	)
	for _, o := range outcomes {
		warnings = append(warnings, o.warnings...)
		stats.Uploaded += o.uploaded
		if o.capture != nil {
			captures = append(captures, *o.capture)
			stats.Rendered++
		}
	}
	return captures, warnings, stats
}

func (c *Capturer) captureOne(ctx context.Context, runID string, page model.SelectedPage) pageOutcome {
	log := zap.L().With(zap.String("run_id", runID), zap.String("url", page.URL))
	var out pageOutcome
	warn := func(format string, args ...any) {
		out.warnings = append(out.warnings, model.Warning{
			Stage: model.StageCapture, Subject: page.URL, Reason: fmt.Sprintf(format, args...),
		})
	}

	sess, err := c.pool.Acquire(ctx, c.cfg.AcquireTimeout)
	if err != nil {
		log.Warn("capture: browser unavailable", zap.Error(err))
		warn("browser unavailable: %v", err)
		return out
	}
	released := false
	release := func() {
		if !released {
			released = true
			c.pool.Release(sess)
		}
	}
	defer release()

	nav, err := sess.Navigate(ctx, page.URL, c.cfg.NavigateTimeout)
	if err != nil {
		log.Warn("capture: navigation failed", zap.Error(err))
		warn("navigation failed: %v", err)
		return out
	}
	if nav.StatusCode >= http.StatusBadRequest {
		warn("navigation returned status %d", nav.StatusCode)
		return out
	}

	desktop := c.screenshot(ctx, sess, browser.Desktop, warn)
	mobile := c.screenshot(ctx, sess, browser.Mobile, warn)
	release()

	finalURL := nav.FinalURL
	if finalURL == "" {
		finalURL = page.URL
	}
	ext := Extract(finalURL, nav.HTML)

	pc := &model.PageCapture{
		URL:               page.URL,
		FinalURL:          finalURL,
		StatusCode:        nav.StatusCode,
		IsRoot:            page.Depth == 0,
		DesktopScreenshot: desktop,
		MobileScreenshot:  mobile,
		Text:              ext.Text,
		WordCount:         ext.WordCount,
		Meta:              ext.Meta,
		Technologies:      ext.Technologies,
		SocialProfiles:    ext.SocialProfiles,
		LoadTime:          nav.LoadTime,
	}

	if c.store != nil {
		if ref, ok := c.upload(ctx, runID, page.URL, "desktop", desktop, warn); ok {
			pc.DesktopScreenshotRef = ref
			out.uploaded++
		}
		if ref, ok := c.upload(ctx, runID, page.URL, "mobile", mobile, warn); ok {
			pc.MobileScreenshotRef = ref
			out.uploaded++
		}
	}

	log.Debug("capture: page captured",
		zap.Int("status", pc.StatusCode),
		zap.Int("words", pc.WordCount),
		zap.Duration("load_time", pc.LoadTime),
	)
	out.capture = pc
	return out
}

func (c *Capturer) screenshot(ctx context.Context, sess browser.Session, vp browser.Viewport, warn func(string, ...any)) []byte {
	shotCtx, cancel := context.WithTimeout(ctx, c.cfg.ScreenshotTimeout)
	defer cancel()

	img, err := sess.Screenshot(shotCtx, vp)
	if err != nil {
		warn("%dx%d screenshot failed: %v", vp.Width, vp.Height, err)
		return nil
	}
	return img
}

func (c *Capturer) upload(ctx context.Context, runID, pageURL, variant string, data []byte, warn func(string, ...any)) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	upCtx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	ref, err := c.store.Put(upCtx, objectstore.Key(runID, pageURL, variant), data, "image/png")
	if err != nil {
		warn("%s screenshot upload failed: %v", variant, err)
		return "", false
	}
	return ref, true
}
