// Package orchestrator runs the crawl phases: calendar, race lists and race
// results for a date range, and the sharded horse detail crawl.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
	"github.com/JakeFAU/keiba-crawler/internal/dispatcher"
	"github.com/JakeFAU/keiba-crawler/internal/extract"
	"github.com/JakeFAU/keiba-crawler/internal/metrics"
)

// Config controls a crawl.
type Config struct {
	// Workers bounds the parse pool.
	Workers int
	// Location decides which dates are in the future. Nil means Asia/Tokyo, falling back to UTC.
	Location *time.Location
}

// Orchestrator drives the phases against a cache, a pool of fetch sessions and a sink.
type Orchestrator struct {
	cache      crawler.PageCache
	dispatcher *dispatcher.Dispatcher
	sink       crawler.ResultSink
	clock      crawler.Clock
	ids        crawler.IDGenerator
	cfg        Config
	logger     *zap.Logger

	phase   atomic.Int32
	mu      sync.Mutex
	summary Summary
}

// New constructs an Orchestrator.
func New(
	cache crawler.PageCache,
	d *dispatcher.Dispatcher,
	sink crawler.ResultSink,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation("Asia/Tokyo")
		if err != nil {
			loc = time.UTC
		}
		cfg.Location = loc
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cache:      cache,
		dispatcher: d,
		sink:       sink,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
	}
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

// Status returns counters for the current or last run.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		RunID:     o.summary.RunID,
		Phase:     o.Phase().String(),
		Started:   o.summary.Started,
		Fetched:   o.summary.Fetched,
		CacheHits: o.summary.CacheHits,
		Races:     o.summary.Races,
		Rows:      o.summary.Rows,
		Failures:  len(o.summary.Failures),
	}
}

// RunRaces crawls every race run between start and end inclusive and hands
// the extracted records to the sink. Per-key failures are collected in the
// summary; the returned error is non-nil only for invalid input, a failed
// run id or cancellation.
func (o *Orchestrator) RunRaces(ctx context.Context, start, end time.Time) (Summary, error) {
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return Summary{}, fmt.Errorf("end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if err := o.begin(); err != nil {
		return Summary{}, err
	}
	o.logger.Info("race crawl started",
		zap.String("run_id", o.runID()),
		zap.String("start", start.Format(time.DateOnly)),
		zap.String("end", end.Format(time.DateOnly)),
	)

	o.setPhase(PhaseFetchingCalendar)
	calendars := o.ensureCached(ctx, calendarKeys(start, end))
	var dates []time.Time
	fanOut(ctx, o.cfg.Workers, calendars, o.parseCalendar, func(key crawler.PageKey, ds []time.Time, err error) {
		o.recordParseError(key, err)
		dates = append(dates, ds...)
	})
	dates = o.selectDates(dates, start, end)
	o.logger.Info("kaisai dates selected", zap.Int("dates", len(dates)))
	if err := ctx.Err(); err != nil {
		return o.finish(), err
	}

	o.setPhase(PhaseFetchingRaceLists)
	lists := o.ensureCached(ctx, lo.Map(dates, func(d time.Time, _ int) crawler.PageKey {
		return crawler.RaceListKey(d)
	}))
	var raceIDs []string
	fanOut(ctx, o.cfg.Workers, lists, o.parseRaceList, func(key crawler.PageKey, ids []string, err error) {
		o.recordParseError(key, err)
		raceIDs = append(raceIDs, ids...)
	})
	raceIDs = lo.Uniq(raceIDs)
	o.logger.Info("race ids collected", zap.Int("races", len(raceIDs)))
	if err := ctx.Err(); err != nil {
		return o.finish(), err
	}

	o.setPhase(PhaseFetchingRaceResults)
	results := o.ensureCached(ctx, lo.Map(raceIDs, func(id string, _ int) crawler.PageKey {
		return crawler.RaceResultKey(id)
	}))
	fanOut(ctx, o.cfg.Workers, results, o.parseRaceResult, func(key crawler.PageKey, res crawler.RaceResult, err error) {
		if err != nil {
			o.recordParseError(key, err)
			return
		}
		o.persist(ctx, key, res)
	})

	summary := o.finish()
	o.logger.Info("race crawl finished",
		zap.String("run_id", summary.RunID),
		zap.Int("fetched", summary.Fetched),
		zap.Int("cache_hits", summary.CacheHits),
		zap.Int("races", summary.Races),
		zap.Int("rows", summary.Rows),
		zap.Int("failures", len(summary.Failures)),
	)
	return summary, ctx.Err()
}

// RunDetails fetches and caches the horse and pedigree pages of every horse
// the sink knows about and the shard owns. Detail pages are not extracted.
func (o *Orchestrator) RunDetails(ctx context.Context, shard Shard) (Summary, error) {
	if err := shard.Validate(); err != nil {
		return Summary{}, err
	}
	if err := o.begin(); err != nil {
		return Summary{}, err
	}
	o.setPhase(PhaseFetchingDetails)

	ids, err := o.sink.DistinctHorseIDs(ctx)
	if err != nil {
		return o.finish(), fmt.Errorf("list horse ids: %w", err)
	}
	owned := lo.Filter(ids, func(id string, _ int) bool { return shard.Owns(id) })
	o.logger.Info("detail crawl started",
		zap.String("run_id", o.runID()),
		zap.Int("shard", shard.Index),
		zap.Int("shards", shard.Count),
		zap.Int("horses", len(ids)),
		zap.Int("owned", len(owned)),
	)
	keys := lo.FlatMap(owned, func(id string, _ int) []crawler.PageKey {
		return []crawler.PageKey{crawler.HorseKey(id), crawler.PedigreeKey(id)}
	})
	o.ensureCached(ctx, keys)

	summary := o.finish()
	o.logger.Info("detail crawl finished",
		zap.String("run_id", summary.RunID),
		zap.Int("fetched", summary.Fetched),
		zap.Int("cache_hits", summary.CacheHits),
		zap.Int("failures", len(summary.Failures)),
	)
	return summary, ctx.Err()
}

// ensureCached returns the de-duplicated keys whose markup is in the cache
// once missing keys have been fetched. Keys that could not be fetched are
// recorded as failures and left out.
func (o *Orchestrator) ensureCached(ctx context.Context, keys []crawler.PageKey) []crawler.PageKey {
	keys = lo.Uniq(keys)
	available := make([]crawler.PageKey, 0, len(keys))
	var missing []crawler.PageKey
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		ok, err := o.cache.Exists(ctx, key)
		switch {
		case err != nil:
			o.fail(key, StageCache, err)
		case ok:
			metrics.ObserveCacheHit(key.Kind.String())
			o.update(func(s *Summary) { s.CacheHits++ })
			available = append(available, key)
		default:
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return available
	}

	o.logger.Info("fetching pages",
		zap.Stringer("phase", o.Phase()),
		zap.Int("missing", len(missing)),
		zap.Int("cached", len(available)),
		zap.Int("sessions", o.dispatcher.Size()),
	)
	for _, outcome := range o.dispatcher.Dispatch(ctx, missing) {
		if outcome.Err != nil {
			o.fail(outcome.Key, StageFetch, outcome.Err)
			continue
		}
		o.update(func(s *Summary) { s.Fetched++ })
		available = append(available, outcome.Key)
	}
	return available
}

func (o *Orchestrator) parseCalendar(ctx context.Context, key crawler.PageKey) ([]time.Time, error) {
	doc, err := o.load(ctx, key)
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	var errs []error
	for d, err := range extract.CalendarDates(doc) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dates = append(dates, d)
	}
	return dates, errors.Join(errs...)
}

func (o *Orchestrator) parseRaceList(ctx context.Context, key crawler.PageKey) ([]string, error) {
	doc, err := o.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return extract.RaceIDs(doc), nil
}

func (o *Orchestrator) parseRaceResult(ctx context.Context, key crawler.PageKey) (crawler.RaceResult, error) {
	doc, err := o.load(ctx, key)
	if err != nil {
		return crawler.RaceResult{}, err
	}
	return extract.RaceResult(doc, key.ID)
}

func (o *Orchestrator) load(ctx context.Context, key crawler.PageKey) (*goquery.Document, error) {
	markup, err := o.cache.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	doc, err := extract.ParseDocument(markup)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return doc, nil
}

// persist writes one race to the sink. Called only from the collector goroutine.
func (o *Orchestrator) persist(ctx context.Context, key crawler.PageKey, res crawler.RaceResult) {
	if err := o.sink.InsertRaceInfo(ctx, res.Info); err != nil {
		o.fail(key, StageSink, fmt.Errorf("insert race info: %w", err))
		return
	}
	metrics.ObserveRecords("race_info", 1)
	rows := 0
	for _, row := range res.Order {
		if err := o.sink.InsertRaceResultRow(ctx, row); err != nil {
			o.fail(key, StageSink, fmt.Errorf("insert row %d: %w", row.Position, err))
			continue
		}
		rows++
	}
	metrics.ObserveRecords("race_result", rows)
	o.update(func(s *Summary) {
		s.Races++
		s.Rows += rows
	})
}

func (o *Orchestrator) recordParseError(key crawler.PageKey, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, extract.ErrExtraction) {
		metrics.ObserveExtractionFailure(key.Kind.String())
		o.fail(key, StageExtract, err)
		return
	}
	o.fail(key, StageCache, err)
}

// selectDates keeps de-duplicated dates inside [start, end] that are not
// after today in the configured location, sorted ascending.
func (o *Orchestrator) selectDates(dates []time.Time, start, end time.Time) []time.Time {
	today := dateOnly(o.clock.Now().In(o.cfg.Location))
	kept := lo.Uniq(lo.Filter(dates, func(d time.Time, _ int) bool {
		return !d.Before(start) && !d.After(end) && !d.After(today)
	}))
	slices.SortFunc(kept, time.Time.Compare)
	return kept
}

func (o *Orchestrator) begin() error {
	id, err := o.ids.NewID()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	o.mu.Lock()
	o.summary = Summary{RunID: id, Started: o.clock.Now()}
	o.mu.Unlock()
	o.setPhase(PhaseNotStarted)
	return nil
}

func (o *Orchestrator) finish() Summary {
	o.setPhase(PhaseDone)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summary.Finished = o.clock.Now()
	s := o.summary
	s.Failures = slices.Clone(o.summary.Failures)
	return s
}

func (o *Orchestrator) runID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary.RunID
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase.Store(int32(p))
	metrics.SetPhase(int(p))
}

func (o *Orchestrator) update(fn func(*Summary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.summary)
}

func (o *Orchestrator) fail(key crawler.PageKey, stage string, err error) {
	o.logger.Warn("key skipped", zap.Stringer("key", key), zap.String("stage", stage), zap.Error(err))
	o.update(func(s *Summary) {
		s.Failures = append(s.Failures, Failure{Key: key, Stage: stage, Err: err})
	})
}

func calendarKeys(start, end time.Time) []crawler.PageKey {
	var keys []crawler.PageKey
	for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(end); m = m.AddDate(0, 1, 0) {
		keys = append(keys, crawler.CalendarKey(m.Year(), m.Month()))
	}
	return keys
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
