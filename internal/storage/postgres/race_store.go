// Package postgres persists extracted race records in Postgres.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// RaceStoreConfig controls the Postgres connection pool used for race rows.
type RaceStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// RaceStore implements crawler.ResultSink on the race_info and race_result tables.
type RaceStore struct {
	pool queryExecCloser
}

const insertRaceInfoSQL = `
INSERT INTO race_info (
	race_id,
	no,
	kind,
	length,
	direction,
	name,
	start,
	weather,
	state,
	course,
	etc_1,
	etc_2,
	etc_3,
	etc_4,
	etc_5,
	etc_6,
	etc_7,
	etc_8
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
) ON CONFLICT (race_id) DO NOTHING`

const insertRaceResultSQL = `
INSERT INTO race_result (
	race_id,
	position,
	rank,
	waku,
	umaban,
	horse_name,
	horse_sex,
	horse_age,
	jockey_weight,
	jockey_name,
	time,
	chakusa,
	popular,
	odds,
	agari,
	passage_rate,
	trainer_place,
	trainer_name,
	horse_weight,
	horse_weight_delta,
	horse_id,
	jockey_id,
	trainer_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
) ON CONFLICT (race_id, position) DO NOTHING`

const distinctHorseIDsSQL = `SELECT DISTINCT horse_id FROM race_result WHERE horse_id IS NOT NULL ORDER BY horse_id`

// NewRaceStore creates a Postgres-backed RaceStore using the provided config.
func NewRaceStore(ctx context.Context, cfg RaceStoreConfig) (*RaceStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RaceStore{pool: pool}, nil
}

// NewRaceStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRaceStoreWithPool(pool queryExecCloser) (*RaceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RaceStore{pool: pool}, nil
}

// Ping checks the database is reachable.
func (s *RaceStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RaceStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// InsertRaceInfo stores the race header. Race number and distance are stored
// as integers; unparseable values become NULL.
func (s *RaceStore) InsertRaceInfo(ctx context.Context, info crawler.RaceInfo) error {
	if info.RaceID == "" {
		return fmt.Errorf("race id is required")
	}
	args := []any{
		info.RaceID,
		toInt(info.No),
		info.Kind,
		toInt(info.Length),
		info.Direction,
		info.Name,
		info.Time,
		info.Weather,
		info.State,
		info.Course,
		info.Etc1,
		info.Etc2,
		info.Etc3,
		info.Etc4,
		info.Etc5,
		info.Etc6,
		info.Etc7,
		info.Etc8,
	}
	if _, err := s.pool.Exec(ctx, insertRaceInfoSQL, args...); err != nil {
		return fmt.Errorf("insert race_info %s: %w", info.RaceID, err)
	}
	return nil
}

// InsertRaceResultRow stores one finishing order row.
func (s *RaceStore) InsertRaceResultRow(ctx context.Context, row crawler.RaceResultRow) error {
	if row.RaceID == "" {
		return fmt.Errorf("race id is required")
	}
	args := []any{
		row.RaceID,
		int32(row.Position), // #nosec G115 -- positions are table row indexes.
		toInt(row.Rank),
		toInt(row.Waku),
		toInt(row.Umaban),
		row.HorseName,
		row.HorseSex,
		toInt(row.HorseAge),
		toFloat(row.JockeyWeight),
		row.JockeyName,
		row.Time1,
		row.Time2,
		toInt(row.Odds1),
		toFloat(row.Odds2),
		toFloat(row.Time3),
		row.PassageRate,
		row.TrainerPlace,
		row.TrainerName,
		toInt(row.HorseWeight),
		toInt(row.HorseWeightDelta),
		row.HorseID,
		row.JockeyID,
		row.TrainerID,
	}
	if _, err := s.pool.Exec(ctx, insertRaceResultSQL, args...); err != nil {
		return fmt.Errorf("insert race_result %s#%d: %w", row.RaceID, row.Position, err)
	}
	return nil
}

// DistinctHorseIDs returns every horse id referenced by stored results.
func (s *RaceStore) DistinctHorseIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, distinctHorseIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("query horse ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan horse ids: %w", err)
	}
	return ids, nil
}
