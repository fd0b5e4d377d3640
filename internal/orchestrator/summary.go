package orchestrator

import (
	"time"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// Failure stages.
const (
	StageFetch   = "fetch"
	StageCache   = "cache"
	StageExtract = "extract"
	StageSink    = "sink"
)

// Failure is one key that did not contribute to the run.
type Failure struct {
	Key   crawler.PageKey
	Stage string
	Err   error
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Fetched   int
	CacheHits int
	Races     int
	Rows      int
	Failures  []Failure
}

// FailuresAt returns the failures recorded at stage.
func (s Summary) FailuresAt(stage string) []Failure {
	var out []Failure
	for _, f := range s.Failures {
		if f.Stage == stage {
			out = append(out, f)
		}
	}
	return out
}

// Status is a point-in-time view of the current run, served by the status endpoint.
type Status struct {
	RunID     string    `json:"run_id,omitempty"`
	Phase     string    `json:"phase"`
	Started   time.Time `json:"started,omitzero"`
	Fetched   int       `json:"fetched"`
	CacheHits int       `json:"cache_hits"`
	Races     int       `json:"races"`
	Rows      int       `json:"rows"`
	Failures  int       `json:"failures"`
}
