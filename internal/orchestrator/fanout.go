package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

type parsed[T any] struct {
	key   crawler.PageKey
	value T
	err   error
}

// fanOut parses keys on at most limit goroutines and hands every result to
// collect from a single goroutine, so collect needs no locking. It returns
// once every started parse has been collected.
func fanOut[T any](
	ctx context.Context,
	limit int,
	keys []crawler.PageKey,
	parse func(context.Context, crawler.PageKey) (T, error),
	collect func(crawler.PageKey, T, error),
) {
	results := make(chan parsed[T])
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			collect(r.key, r.value, r.err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			value, err := parse(gctx, key)
			results <- parsed[T]{key: key, value: value, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done
}
