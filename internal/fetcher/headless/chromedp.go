// Package headless contains fetchers that render pages in a browser.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

const (
	defaultNavTimeout   = 45 * time.Second
	defaultReadyTimeout = 10 * time.Second
)

// Config controls one browser session.
type Config struct {
	Site crawler.Site
	// RemoteURL is a DevTools endpoint (ws:// or http://host:9222). Empty launches a local browser.
	RemoteURL string
	// Proxy is passed to a locally launched browser as --proxy-server.
	Proxy             string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
}

// Fetcher implements crawler.Fetcher with a single exclusive chromedp tab.
// Fetch calls on one Fetcher are serialized.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	limiter       chan struct{}
	meta          *responseMeta
	browser       context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewChromedp starts a browser session and blocks until it is usable.
func NewChromedp(ctx context.Context, cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		cfg:     cfg,
		logger:  logger,
		limiter: make(chan struct{}, 1),
		meta:    newResponseMeta(),
	}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		if cfg.Proxy != "" {
			logger.Warn("proxy is ignored for remote browsers", zap.String("proxy", cfg.Proxy))
		}
		allocCtx, f.allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		allocCtx, f.allocCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	}
	f.browser, f.browserCancel = chromedp.NewContext(allocCtx)

	// The first Run allocates the tab; later runs reuse it.
	if err := chromedp.Run(f.browser); err != nil {
		f.Close()
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	chromedp.ListenTarget(f.browser, f.meta.captureEvent)
	return f, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Close ends the tab and the browser allocator.
func (f *Fetcher) Close() {
	if f.browserCancel != nil {
		f.browserCancel()
	}
	if f.allocCancel != nil {
		f.allocCancel()
	}
}

// Fetch navigates to the page for key, waits until the page's readiness
// element is visible and returns the rendered markup.
func (f *Fetcher) Fetch(ctx context.Context, key crawler.PageKey) ([]byte, error) {
	url, err := f.cfg.Site.URL(key)
	if err != nil {
		return nil, err
	}
	if err := f.acquire(ctx); err != nil {
		return nil, &crawler.LoadFailure{Key: key, URL: url, Reason: "session wait", Err: err}
	}
	defer f.release()

	runCtx, cancel := context.WithTimeout(f.browser, f.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	f.meta.reset()
	start := time.Now()
	html, err := f.render(runCtx, url, readinessSelector(key.Kind))
	if err != nil {
		return nil, &crawler.LoadFailure{Key: key, URL: url, Reason: "render", Err: err}
	}
	if status := f.meta.statusCode(); status >= http.StatusBadRequest {
		return nil, &crawler.LoadFailure{Key: key, URL: url, Reason: fmt.Sprintf("status %d", status)}
	}
	f.logger.Debug("page rendered",
		zap.Stringer("key", key),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(html)),
	)
	return []byte(html), nil
}

func (f *Fetcher) render(ctx context.Context, url, readySelector string) (string, error) {
	var html string
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		waitVisible(readySelector, f.readyTimeout()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

// readinessSelector names the element whose visibility marks a page as loaded.
func readinessSelector(kind crawler.PageKind) string {
	switch kind {
	case crawler.KindRaceList:
		return "#RaceTopRace"
	case crawler.KindRaceResult:
		return ".RaceList_NameBox"
	default:
		return "body"
	}
}

func waitVisible(selector string, timeout time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := chromedp.WaitVisible(selector, chromedp.ByQuery).Do(ctx); err != nil {
			return fmt.Errorf("wait for %s: %w", selector, err)
		}
		return nil
	})
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

func (f *Fetcher) readyTimeout() time.Duration {
	if f.cfg.ReadyTimeout > 0 {
		return f.cfg.ReadyTimeout
	}
	return defaultReadyTimeout
}

// responseMeta records the status of the last document response in the tab.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status, m.url = 0, ""
	m.mu.Unlock()
}

func (m *responseMeta) statusCode() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
