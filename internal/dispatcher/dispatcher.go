// Package dispatcher fans page keys out to a pool of fetch sessions.
package dispatcher

import (
	"context"
	"sync"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
	"github.com/JakeFAU/keiba-crawler/internal/worker"
)

// Dispatcher distributes keys across workers. Each worker handles one key at
// a time, so the number of in-flight fetches never exceeds len(workers).
type Dispatcher struct {
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Size reports the number of sessions.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Dispatch fetches every key and blocks until all workers drain the queue.
// One outcome is returned per key, in completion order.
func (d *Dispatcher) Dispatch(ctx context.Context, keys []crawler.PageKey) []worker.Outcome {
	if len(keys) == 0 || len(d.workers) == 0 {
		return nil
	}
	in := make(chan crawler.PageKey, len(keys))
	out := make(chan worker.Outcome, len(keys))
	for _, k := range keys {
		in <- k
	}
	close(in)

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx, in, out)
		}(w)
	}
	wg.Wait()
	close(out)

	outcomes := make([]worker.Outcome, 0, len(keys))
	for o := range out {
		outcomes = append(outcomes, o)
	}
	return outcomes
}
