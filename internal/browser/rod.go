package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config configures the Chrome process backing the pool.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string
	BinPath   string
	Stealth   bool
	NoSandbox bool
}

// Browser is a connected Chrome instance.
type Browser struct {
	cfg  Config
	rod  *rod.Browser
	lnch *launcher.Launcher
}

// Launch starts (or connects to) Chrome.
func Launch(cfg Config) (*Browser, error) {
	wsURL := cfg.RemoteURL
	var lnch *launcher.Launcher

	if wsURL == "" {
		lnch = launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		if cfg.BinPath != "" {
			lnch = lnch.Bin(cfg.BinPath)
		}
		if cfg.NoSandbox {
			lnch = lnch.NoSandbox(true)
		}
		u, err := lnch.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "browser: launch")
		}
		wsURL = u
		zap.L().Info("browser: launched local chrome", zap.Bool("stealth", cfg.Stealth))
	} else {
		zap.L().Info("browser: connecting to remote chrome", zap.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, eris.Wrap(err, "browser: connect")
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		zap.L().Warn("browser: ignore cert errors failed", zap.Error(err))
	}

	return &Browser{cfg: cfg, rod: b, lnch: lnch}, nil
}

// NewSession opens a blank tab, with stealth patches when configured.
func (b *Browser) NewSession(_ context.Context) (Session, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.cfg.Stealth {
		page, err = stealth.Page(b.rod)
	} else {
		page, err = b.rod.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, eris.Wrap(err, "browser: create tab")
	}
	return &rodSession{page: page}, nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	err := b.rod.Close()
	if b.lnch != nil {
		b.lnch.Cleanup()
	}
	if err != nil {
		return eris.Wrap(err, "browser: close")
	}
	return nil
}

type rodSession struct {
	page *rod.Page
}

func (s *rodSession) Navigate(ctx context.Context, url string, timeout time.Duration) (*Navigation, error) {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := s.page.Context(navCtx)

	// The main document response carries the HTTP status.
	status := make(chan int, 1)
	go page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		select {
		case status <- e.Response.Status:
		default:
		}
		return true
	})()

	start := time.Now()
	if err := page.Navigate(url); err != nil {
		return nil, eris.Wrapf(err, "browser: navigate %s", url)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, eris.Wrapf(err, "browser: wait load %s", url)
	}
	loadTime := time.Since(start)

	html, err := page.HTML()
	if err != nil {
		return nil, eris.Wrapf(err, "browser: read html %s", url)
	}

	nav := &Navigation{FinalURL: url, HTML: html, LoadTime: loadTime}
	if info, err := page.Info(); err == nil && info.URL != "" {
		nav.FinalURL = info.URL
	}
	select {
	case nav.StatusCode = <-status:
	default:
	}
	return nav, nil
}

func (s *rodSession) Screenshot(ctx context.Context, vp Viewport) ([]byte, error) {
	page := s.page.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.DeviceScaleFactor,
		Mobile:            vp.Mobile,
	}); err != nil {
		return nil, eris.Wrap(err, "browser: set viewport")
	}
	if err := (proto.EmulationSetTouchEmulationEnabled{Enabled: vp.Mobile}).Call(page); err != nil {
		zap.L().Debug("browser: touch emulation", zap.Error(err))
	}

	img, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "browser: screenshot %dx%d", vp.Width, vp.Height)
	}
	return img, nil
}

func (s *rodSession) Close() error {
	return s.page.Close()
}
