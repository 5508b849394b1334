// Package browser implements the automation driver contract with go-rod.
// Each resource is one Chromium process bound to a persistent per-identity
// profile directory.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/config"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
)

// Driver launches Chromium instances with stealth settings.
type Driver struct {
	chromePath string
	headless   bool
	proxyURL   string
	logger     *slog.Logger
}

// New creates a rod-backed driver.
func New(cfg *config.Config, logger *slog.Logger) *Driver {
	return &Driver{
		chromePath: cfg.ChromePath,
		headless:   cfg.Headless,
		proxyURL:   cfg.ProxyURL,
		logger:     logger,
	}
}

// Warmup ensures Chromium is available, downloading it if necessary.
// Called once during startup so the first job does not pay the download cost.
func (d *Driver) Warmup(ctx context.Context) error {
	if d.chromePath != "" {
		d.logger.Info("using custom Chrome path", "path", d.chromePath)
		return nil
	}
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return err
	}
	d.logger.Info("Chromium ready", "path", path)
	return nil
}

// Open launches a browser bound to the given persistent profile directory.
func (d *Driver) Open(ctx context.Context, profileDir string) (driver.Resource, error) {
	l := launcher.New()

	if d.chromePath != "" {
		l = l.Bin(d.chromePath)
	}
	if d.proxyURL != "" {
		l = l.Proxy(d.proxyURL)
	}

	l = l.
		Headless(d.headless).
		UserDataDir(profileDir).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch: %v", driver.ErrResourceUnavailable, err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect: %v", driver.ErrResourceUnavailable, err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: page: %v", driver.ErrResourceUnavailable, err)
	}

	d.logger.Info("browser opened", "profile_dir", profileDir)

	return &Browser{rod: b, page: page, logger: d.logger}, nil
}

// Browser is one live Chromium instance with a primary page.
type Browser struct {
	rod    *rod.Browser
	page   *rod.Page
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Page returns the primary page of this browser.
func (b *Browser) Page() *rod.Page {
	return b.page
}

// Close shuts the browser down. Safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		if b.page != nil {
			_ = b.page.Close()
		}
		if err := b.rod.Close(); err != nil {
			b.logger.Warn("error closing browser", "error", err)
			b.closeErr = err
		}
	})
	return b.closeErr
}

// Healthy pings the browser over CDP.
func (b *Browser) Healthy() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_, err := b.rod.Pages()
	return err == nil
}

// Navigate loads a URL on the primary page and waits for the load event.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	page := b.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

// Screenshot captures the current viewport of the primary page as PNG.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	page := b.page.Context(ctx)
	return page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Idle lets the page settle for up to d, returning early on ctx cancellation.
func (b *Browser) Idle(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
