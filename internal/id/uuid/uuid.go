// Package uuid issues crawl run identifiers.
package uuid

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

// RunIDs issues UUIDv7 strings. The leading millisecond timestamp makes run ids
// sort in start order.
type RunIDs struct {
	rand io.Reader
}

// New returns a generator backed by crypto/rand.
func New() *RunIDs {
	return &RunIDs{}
}

// NewFromReader draws the random bits from r instead.
func NewFromReader(r io.Reader) *RunIDs {
	return &RunIDs{rand: r}
}

// NewID returns the next run id.
func (g *RunIDs) NewID() (string, error) {
	var (
		id  uuid.UUID
		err error
	)
	if g.rand != nil {
		id, err = uuid.NewV7FromReader(g.rand)
	} else {
		id, err = uuid.NewV7()
	}
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return id.String(), nil
}
