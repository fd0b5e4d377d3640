package orchestrator

import (
	"errors"
	"hash/fnv"
)

// Phase is the crawl state machine. A run advances only after every key of
// the current phase has been processed.
type Phase int32

// Crawl phases in order.
const (
	PhaseNotStarted Phase = iota
	PhaseFetchingCalendar
	PhaseFetchingRaceLists
	PhaseFetchingRaceResults
	PhaseFetchingDetails
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseNotStarted:          "not_started",
	PhaseFetchingCalendar:    "fetching_calendar",
	PhaseFetchingRaceLists:   "fetching_race_lists",
	PhaseFetchingRaceResults: "fetching_race_results",
	PhaseFetchingDetails:     "fetching_details",
	PhaseDone:                "done",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Shard selects the slice of horse ids one detail crawl owns. Membership
// hashes the id itself, so it does not depend on listing order.
type Shard struct {
	Index int
	Count int
}

// Validate reports whether the shard is addressable.
func (s Shard) Validate() error {
	if s.Count < 1 {
		return errors.New("shard count must be at least 1")
	}
	if s.Index < 0 || s.Index >= s.Count {
		return errors.New("shard index must be in [0, count)")
	}
	return nil
}

// Owns reports whether id belongs to this shard.
func (s Shard) Owns(id string) bool {
	if s.Count <= 1 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32()%uint32(s.Count) == uint32(s.Index)
}
