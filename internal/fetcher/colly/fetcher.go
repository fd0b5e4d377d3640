// Package collyfetcher implements Fetcher for static pages using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	Site          crawler.Site
	UserAgent     string
	Proxy         string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements crawler.Fetcher with a Colly collector. Response bodies
// are converted to UTF-8, so EUC-JP detail pages arrive decoded.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchState struct {
	body   []byte
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	c := colly.NewCollector(colly.Async(false))
	c.DetectCharset = true
	c.WithTransport(newHTTPTransport())
	if cfg.Proxy != "" {
		if err := c.SetProxy(cfg.Proxy); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}, nil
}

// Fetch executes a single HTTP GET for key.
func (f *Fetcher) Fetch(ctx context.Context, key crawler.PageKey) ([]byte, error) {
	url, err := f.cfg.Site.URL(key)
	if err != nil {
		return nil, err
	}
	state := &fetchState{}
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, state)

	if err := f.runCollector(ctx, collector, url); err != nil {
		if ctx.Err() != nil {
			return nil, &crawler.LoadFailure{Key: key, URL: url, Reason: "canceled", Err: err}
		}
		return nil, failure(key, url, state, err)
	}
	if state.err != nil || state.status >= http.StatusBadRequest {
		return nil, failure(key, url, state, state.err)
	}
	return state.body, nil
}

func failure(key crawler.PageKey, url string, state *fetchState, err error) *crawler.LoadFailure {
	reason := "request"
	if state.status >= http.StatusBadRequest {
		reason = fmt.Sprintf("status %d", state.status)
	}
	return &crawler.LoadFailure{Key: key, URL: url, Reason: reason, Err: err}
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.DetectCharset = true
	collector.AllowURLRevisit = true
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, state *fetchState) {
	hooks.OnResponse(func(r *colly.Response) {
		state.status = r.StatusCode
		state.body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
