// Package fetcher selects a fetch strategy per page kind.
package fetcher

import (
	"context"
	"fmt"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// Router dispatches Fetch calls to the fetcher registered for the key's kind.
// Kinds without a route use the fallback.
type Router struct {
	routes   map[crawler.PageKind]crawler.Fetcher
	fallback crawler.Fetcher
}

// NewRouter returns a Router that sends unrouted kinds to fallback.
func NewRouter(fallback crawler.Fetcher) *Router {
	return &Router{routes: map[crawler.PageKind]crawler.Fetcher{}, fallback: fallback}
}

// Route registers f for the given kinds and returns the router for chaining.
func (r *Router) Route(f crawler.Fetcher, kinds ...crawler.PageKind) *Router {
	for _, k := range kinds {
		r.routes[k] = f
	}
	return r
}

// Fetch implements crawler.Fetcher.
func (r *Router) Fetch(ctx context.Context, key crawler.PageKey) ([]byte, error) {
	f, ok := r.routes[key.Kind]
	if !ok {
		f = r.fallback
	}
	if f == nil {
		return nil, &crawler.LoadFailure{Key: key, Reason: fmt.Sprintf("no fetcher for %s", key.Kind)}
	}
	return f.Fetch(ctx, key)
}

// Offline never touches the network. Running with it turns a crawl into a
// pass over whatever is already cached.
type Offline struct{}

// Fetch always fails with a LoadFailure.
func (Offline) Fetch(_ context.Context, key crawler.PageKey) ([]byte, error) {
	return nil, &crawler.LoadFailure{Key: key, Reason: "offline"}
}
