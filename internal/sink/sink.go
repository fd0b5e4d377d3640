// Package sink holds ResultSink implementations that do not need a database:
// an in-memory store, a zap log sink, a Pub/Sub notifier and a fan-out.
package sink

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// Memory keeps every record in process.
type Memory struct {
	mu    sync.RWMutex
	infos map[string]crawler.RaceInfo
	rows  []crawler.RaceResultRow
	seen  map[rowKey]struct{}
}

type rowKey struct {
	raceID   string
	position int
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{
		infos: map[string]crawler.RaceInfo{},
		seen:  map[rowKey]struct{}{},
	}
}

// InsertRaceInfo stores info; a second insert for the same race is ignored.
func (m *Memory) InsertRaceInfo(_ context.Context, info crawler.RaceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.infos[info.RaceID]; !ok {
		m.infos[info.RaceID] = info
	}
	return nil
}

// InsertRaceResultRow stores row; duplicates by race and position are ignored.
func (m *Memory) InsertRaceResultRow(_ context.Context, row crawler.RaceResultRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := rowKey{raceID: row.RaceID, position: row.Position}
	if _, ok := m.seen[k]; ok {
		return nil
	}
	m.seen[k] = struct{}{}
	m.rows = append(m.rows, row)
	return nil
}

// DistinctHorseIDs returns the sorted horse ids of all stored rows.
func (m *Memory) DistinctHorseIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := lo.Uniq(lo.FilterMap(m.rows, func(r crawler.RaceResultRow, _ int) (string, bool) {
		if r.HorseID == nil {
			return "", false
		}
		return *r.HorseID, true
	}))
	slices.Sort(ids)
	return ids, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// RaceInfos returns stored infos sorted by race id.
func (m *Memory) RaceInfos() []crawler.RaceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := lo.Values(m.infos)
	slices.SortFunc(infos, func(a, b crawler.RaceInfo) int {
		switch {
		case a.RaceID < b.RaceID:
			return -1
		case a.RaceID > b.RaceID:
			return 1
		}
		return 0
	})
	return infos
}

// Rows returns stored rows for raceID in position order.
func (m *Memory) Rows(raceID string) []crawler.RaceResultRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := lo.Filter(m.rows, func(r crawler.RaceResultRow, _ int) bool { return r.RaceID == raceID })
	slices.SortFunc(rows, func(a, b crawler.RaceResultRow) int { return a.Position - b.Position })
	return rows
}

// Log writes a line per record. It is the sink of a crawl run without a database.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a Log sink.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// InsertRaceInfo logs the race header.
func (l *Log) InsertRaceInfo(_ context.Context, info crawler.RaceInfo) error {
	l.logger.Info("race info",
		zap.String("race_id", info.RaceID),
		zap.Stringp("name", info.Name),
		zap.Stringp("course", info.Course),
		zap.Stringp("start", info.Time),
	)
	return nil
}

// InsertRaceResultRow logs one finisher.
func (l *Log) InsertRaceResultRow(_ context.Context, row crawler.RaceResultRow) error {
	l.logger.Debug("race result row",
		zap.String("race_id", row.RaceID),
		zap.Int("position", row.Position),
		zap.Stringp("horse_id", row.HorseID),
		zap.Stringp("rank", row.Rank),
	)
	return nil
}

// DistinctHorseIDs returns nothing; the log keeps no state.
func (l *Log) DistinctHorseIDs(context.Context) ([]string, error) { return nil, nil }

// Close flushes the logger.
func (l *Log) Close() error {
	_ = l.logger.Sync()
	return nil
}

// RaceEvent is the payload published for each persisted race.
type RaceEvent struct {
	RaceID string  `json:"race_id"`
	Name   *string `json:"name,omitempty"`
	Course *string `json:"course,omitempty"`
	Start  *string `json:"start,omitempty"`
}

// Notifier publishes a RaceEvent per race info. Rows are not published.
type Notifier struct {
	publisher crawler.Publisher
	topic     string
}

// NewNotifier returns a Notifier publishing to topic.
func NewNotifier(publisher crawler.Publisher, topic string) *Notifier {
	return &Notifier{publisher: publisher, topic: topic}
}

// InsertRaceInfo publishes the race event.
func (n *Notifier) InsertRaceInfo(ctx context.Context, info crawler.RaceInfo) error {
	event := RaceEvent{RaceID: info.RaceID, Name: info.Name, Course: info.Course, Start: info.Time}
	if _, err := n.publisher.Publish(ctx, n.topic, event); err != nil {
		return fmt.Errorf("notify race %s: %w", info.RaceID, err)
	}
	return nil
}

// InsertRaceResultRow is a no-op.
func (n *Notifier) InsertRaceResultRow(context.Context, crawler.RaceResultRow) error { return nil }

// DistinctHorseIDs returns nothing.
func (n *Notifier) DistinctHorseIDs(context.Context) ([]string, error) { return nil, nil }

// Close closes the publisher when it supports closing.
func (n *Notifier) Close() error {
	if c, ok := n.publisher.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Multi forwards every record to all sinks. Errors from individual sinks are
// joined; one failing sink does not stop the others.
type Multi struct {
	sinks []crawler.ResultSink
}

// NewMulti returns a Multi over sinks, skipping nil entries.
func NewMulti(sinks ...crawler.ResultSink) *Multi {
	return &Multi{sinks: lo.Filter(sinks, func(s crawler.ResultSink, _ int) bool { return s != nil })}
}

// InsertRaceInfo implements crawler.ResultSink.
func (m *Multi) InsertRaceInfo(ctx context.Context, info crawler.RaceInfo) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.InsertRaceInfo(ctx, info); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InsertRaceResultRow implements crawler.ResultSink.
func (m *Multi) InsertRaceResultRow(ctx context.Context, row crawler.RaceResultRow) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.InsertRaceResultRow(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DistinctHorseIDs merges the ids of every sink, sorted.
func (m *Multi) DistinctHorseIDs(ctx context.Context) ([]string, error) {
	var all []string
	for _, s := range m.sinks {
		ids, err := s.DistinctHorseIDs(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	all = lo.Uniq(all)
	slices.Sort(all)
	return all, nil
}

// Close closes every sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
