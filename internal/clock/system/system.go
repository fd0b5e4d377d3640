// Package system provides the wall clock used to decide which race dates are in the future.
package system

import "time"

// Clock implements crawler.Clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a Clock reporting time in loc. A nil loc means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's location.
func (c *Clock) Location() *time.Location {
	return c.loc
}
