package crawler

import (
	"context"
	"time"
)

// PageCache stores raw page markup addressed by PageKey.
type PageCache interface {
	Exists(ctx context.Context, key PageKey) (bool, error)
	Read(ctx context.Context, key PageKey) ([]byte, error)
	Write(ctx context.Context, key PageKey, markup []byte) error
}

// Fetcher retrieves the markup of a page from the site.
// Failures are reported as *LoadFailure.
type Fetcher interface {
	Fetch(ctx context.Context, key PageKey) ([]byte, error)
}

// ResultSink receives extracted records.
type ResultSink interface {
	InsertRaceInfo(ctx context.Context, info RaceInfo) error
	InsertRaceResultRow(ctx context.Context, row RaceResultRow) error
	DistinctHorseIDs(ctx context.Context) ([]string, error)
	Close() error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
