// Package worker implements the per-session fetch loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
	"github.com/JakeFAU/keiba-crawler/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// Delay is the pause after every fetch attempt, successful or not.
	Delay time.Duration
}

// Outcome reports what happened to one key.
type Outcome struct {
	Key crawler.PageKey
	Err error
}

// Worker owns one fetch session. It fetches keys one at a time, writes the
// markup to the cache and pauses between attempts.
type Worker struct {
	id      int
	fetcher crawler.Fetcher
	cache   crawler.PageCache
	pauser  Pauser
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(id int, fetcher crawler.Fetcher, cache crawler.PageCache, pauser Pauser, cfg Config, logger *zap.Logger) *Worker {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		fetcher: fetcher,
		cache:   cache,
		pauser:  pauser,
		cfg:     cfg,
		logger:  logger.With(zap.Int("session", id)),
	}
}

// Run consumes keys until the channel closes, sending one Outcome per key.
// Keys received after ctx is done are reported with the context error and not fetched.
func (w *Worker) Run(ctx context.Context, keys <-chan crawler.PageKey, out chan<- Outcome) {
	for key := range keys {
		if err := ctx.Err(); err != nil {
			out <- Outcome{Key: key, Err: err}
			continue
		}
		err := w.process(ctx, key)
		out <- Outcome{Key: key, Err: err}
		w.pauser.Pause(ctx, w.cfg.Delay)
	}
}

func (w *Worker) process(ctx context.Context, key crawler.PageKey) error {
	metrics.IncActiveSessions()
	defer metrics.DecActiveSessions()

	start := time.Now()
	markup, err := w.fetcher.Fetch(ctx, key)
	if err != nil {
		metrics.ObserveFetch(key.Kind.String(), outcomeLabel(err), time.Since(start))
		w.logger.Warn("fetch failed", zap.Stringer("key", key), zap.Error(err))
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	metrics.ObserveFetch(key.Kind.String(), "ok", time.Since(start))

	if err := w.cache.Write(ctx, key, markup); err != nil {
		w.logger.Error("cache write failed", zap.Stringer("key", key), zap.Error(err))
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	w.logger.Debug("page cached",
		zap.Stringer("key", key),
		zap.Int("bytes", len(markup)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func outcomeLabel(err error) string {
	var failure *crawler.LoadFailure
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &failure):
		return "load_failure"
	default:
		return "error"
	}
}
