// Package app builds and holds the long-lived services of one CLI invocation:
// the page cache, the result sink and the fetch sessions.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/api"
	"github.com/JakeFAU/keiba-crawler/internal/clock/system"
	"github.com/JakeFAU/keiba-crawler/internal/config"
	"github.com/JakeFAU/keiba-crawler/internal/crawler"
	"github.com/JakeFAU/keiba-crawler/internal/dispatcher"
	"github.com/JakeFAU/keiba-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/keiba-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/keiba-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/keiba-crawler/internal/id/uuid"
	"github.com/JakeFAU/keiba-crawler/internal/orchestrator"
	pspub "github.com/JakeFAU/keiba-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/keiba-crawler/internal/sink"
	"github.com/JakeFAU/keiba-crawler/internal/storage/gcs"
	"github.com/JakeFAU/keiba-crawler/internal/storage/local"
	"github.com/JakeFAU/keiba-crawler/internal/storage/memory"
	"github.com/JakeFAU/keiba-crawler/internal/storage/postgres"
	"github.com/JakeFAU/keiba-crawler/internal/worker"
)

// App is the dependency container shared by the commands.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	cache   crawler.PageCache
	sink    crawler.ResultSink
	checks  []api.Check
	closers []func() error
}

type options struct {
	cache     crawler.PageCache
	sink      crawler.ResultSink
	publisher crawler.Publisher
}

// Option overrides a service New would otherwise build from config.
type Option func(*options)

// WithCache uses cache instead of the configured backend.
func WithCache(cache crawler.PageCache) Option {
	return func(o *options) { o.cache = cache }
}

// WithSink uses s instead of the configured sinks.
func WithSink(s crawler.ResultSink) Option {
	return func(o *options) { o.sink = s }
}

// WithPublisher sends race notifications through p instead of Pub/Sub.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New initializes the cache and sink described by cfg. It fails fast: a
// service that cannot be built releases everything built before it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}

	cache := o.cache
	if cache == nil {
		var err error
		if cache, err = a.newCache(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.cache = cache

	rs := o.sink
	if rs == nil {
		var err error
		if rs, err = a.newSink(ctx, o.publisher); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.sink = rs

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("database", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != "" || o.publisher != nil),
	)
	return a, nil
}

func (a *App) newCache(ctx context.Context) (crawler.PageCache, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.NewPageCache(), nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		cache, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs cache: %w", err)
		}
		return cache, nil
	default:
		cache, err := local.New(local.Config{BaseDir: a.cfg.Crawler.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local cache: %w", err)
		}
		return cache, nil
	}
}

// newSink combines the database (or a log sink when no DSN is set) with the
// Pub/Sub notifier when one is configured.
func (a *App) newSink(ctx context.Context, publisher crawler.Publisher) (crawler.ResultSink, error) {
	var sinks []crawler.ResultSink
	if a.cfg.DB.DSN != "" {
		store, err := postgres.NewRaceStore(ctx, postgres.RaceStoreConfig{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init race store: %w", err)
		}
		a.checks = append(a.checks, api.Check{Name: "postgres", Run: store.Ping})
		sinks = append(sinks, store)
	} else {
		sinks = append(sinks, sink.NewLog(a.logger.Named("sink")))
	}

	if publisher == nil && a.cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			_ = sink.NewMulti(sinks...).Close()
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		publisher = pspub.New(client)
	}
	if publisher != nil {
		sinks = append(sinks, sink.NewNotifier(publisher, a.cfg.PubSub.TopicName))
	}
	return sink.NewMulti(sinks...), nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Cache returns the page cache.
func (a *App) Cache() crawler.PageCache { return a.cache }

// Sink returns the result sink.
func (a *App) Sink() crawler.ResultSink { return a.sink }

// Checks returns the readiness checks of the configured services.
func (a *App) Checks() []api.Check { return slices.Clone(a.checks) }

// SessionOptions selects how fetch sessions are built.
type SessionOptions struct {
	// Offline serves only cached pages; nothing is fetched.
	Offline bool
	// Proxies overrides browser.proxies. Each proxy gets its own session.
	Proxies []string
}

// Sessions builds one fetcher per session. Listing pages go through a
// browser; detail pages go through plain HTTP. Sessions are closed by Close.
func (a *App) Sessions(ctx context.Context, opts SessionOptions) ([]crawler.Fetcher, error) {
	if opts.Offline {
		return []crawler.Fetcher{fetcher.NewRouter(fetcher.Offline{})}, nil
	}
	proxies := opts.Proxies
	if len(proxies) == 0 {
		proxies = a.cfg.Browser.Proxies
	}
	if len(proxies) == 0 {
		proxies = make([]string, a.cfg.Crawler.Sessions)
	}

	fetchers := make([]crawler.Fetcher, 0, len(proxies))
	for i, proxy := range proxies {
		browser, err := headless.NewChromedp(ctx, headless.Config{
			Site:              a.cfg.Site,
			RemoteURL:         a.cfg.Browser.RemoteURL,
			Proxy:             proxy,
			Headless:          a.cfg.Browser.Headless,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: a.cfg.Crawler.NavTimeout,
			ReadyTimeout:      a.cfg.Crawler.ReadyTimeout,
		}, a.logger.Named("chromedp").With(zap.Int("session", i)))
		if err != nil {
			return nil, fmt.Errorf("start browser session %d: %w", i, err)
		}
		a.closers = append(a.closers, func() error {
			browser.Close()
			return nil
		})

		static, err := collyfetcher.New(collyfetcher.Config{
			Site:          a.cfg.Site,
			UserAgent:     a.cfg.Crawler.UserAgent,
			Proxy:         proxy,
			RespectRobots: a.cfg.Crawler.RespectRobots,
			Timeout:       a.cfg.Crawler.HTTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("build http session %d: %w", i, err)
		}

		fetchers = append(fetchers, fetcher.NewRouter(static).
			Route(browser, crawler.KindCalendar, crawler.KindRaceList, crawler.KindRaceResult))
	}
	a.logger.Info("fetch sessions ready", zap.Int("sessions", len(fetchers)))
	return fetchers, nil
}

// Orchestrator wires one worker per fetcher into a crawl orchestrator.
// Offline sessions skip the inter-request delay.
func (a *App) Orchestrator(fetchers []crawler.Fetcher, offline bool) *orchestrator.Orchestrator {
	wcfg := worker.Config{Delay: a.cfg.Crawler.RequestDelay}
	if offline {
		wcfg.Delay = 0
	}
	workers := make([]*worker.Worker, len(fetchers))
	for i, f := range fetchers {
		workers[i] = worker.New(i, f, a.cache, worker.TimerPauser{}, wcfg, a.logger.Named("worker"))
	}
	loc := a.cfg.Location()
	return orchestrator.New(
		a.cache,
		dispatcher.New(workers),
		a.sink,
		system.New(loc),
		uuid.New(),
		orchestrator.Config{Workers: a.cfg.Crawler.Workers, Location: loc},
		a.logger,
	)
}

// Close releases sessions and clients in reverse order of creation, then the
// sink, then flushes the logger.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
