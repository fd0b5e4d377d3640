package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/app"
	"github.com/JakeFAU/keiba-crawler/internal/config"
	"github.com/JakeFAU/keiba-crawler/internal/crawler"
	"github.com/JakeFAU/keiba-crawler/internal/sink"
	"github.com/JakeFAU/keiba-crawler/internal/storage/memory"
)

// useMemoryApp swaps the application factory for one backed by an in-memory
// cache and sink, restoring it when the test ends.
func useMemoryApp(t *testing.T) (*memory.PageCache, *sink.Memory) {
	t.Helper()
	cache := memory.NewPageCache()
	results := sink.NewMemory()
	prev := newApp
	newApp = func(ctx context.Context, cfg config.Config, _ *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, zap.NewNop(), app.WithCache(cache), app.WithSink(results))
	}
	t.Cleanup(func() { newApp = prev })
	return cache, results
}

func seed(t *testing.T, cache crawler.PageCache, key crawler.PageKey, markup string) {
	t.Helper()
	require.NoError(t, cache.Write(context.Background(), key, []byte(markup)))
}

func TestShowPrintsCachedRace(t *testing.T) {
	cache, _ := useMemoryApp(t)
	markup, err := os.ReadFile(filepath.Join("..", "internal", "extract", "testdata", "race_result.html"))
	require.NoError(t, err)
	seed(t, cache, crawler.RaceResultKey("202406010111"), string(markup))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"show", "--race-id", "202406010111"}, &out))
	assert.Contains(t, out.String(), "中山金杯")
	assert.Contains(t, out.String(), "リカンカブール")
}

func TestShowUncachedRace(t *testing.T) {
	useMemoryApp(t)

	err := run(context.Background(), []string{"show", "--race-id", "202406010111"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not cached")
}

func TestShowRejectsInvalidID(t *testing.T) {
	useMemoryApp(t)

	err := run(context.Background(), []string{"show", "--race-id", "../etc"}, &bytes.Buffer{})
	require.ErrorIs(t, err, crawler.ErrInvalidKey)
}

func TestCrawlRacesOffline(t *testing.T) {
	cache, results := useMemoryApp(t)
	day := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)
	seed(t, cache, crawler.CalendarKey(2024, time.January), `<table class="Calendar_Table"><tr class="Week">`+
		`<td class="RaceCellBox"><a href="../top/race_list.html?kaisai_date=20240106">6</a></td></tr></table>`)
	seed(t, cache, crawler.RaceListKey(day), `<ul><li class="RaceList_DataItem">`+
		`<a href="../race/result.html?race_id=202406010101&rf=race_list">1R</a></li></ul>`)
	seed(t, cache, crawler.RaceResultKey("202406010101"), `<div class="RaceList_NameBox">`+
		`<span class="RaceNum">1R</span><h1 class="RaceName">3歳未勝利</h1>`+
		`<div class="RaceData01">10:05発走 / ダ1200m (右) / 天候:晴 / 馬場:良</div></div>`)

	var out bytes.Buffer
	err := run(context.Background(), []string{"crawl", "races", "--offline", "--start", "20240101", "--end", "20240131"}, &out)
	require.NoError(t, err)

	infos := results.RaceInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, "202406010101", infos[0].RaceID)
	assert.Contains(t, out.String(), "cache hits")
	assert.Equal(t, 3, cache.Writes())
}

func TestCrawlRacesRejectsBadDate(t *testing.T) {
	useMemoryApp(t)

	err := run(context.Background(), []string{"crawl", "races", "--offline", "--start", "2024-01-01", "--end", "20240131"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYYMMDD")
}

func TestCrawlDetailsValidatesShard(t *testing.T) {
	useMemoryApp(t)

	err := run(context.Background(), []string{"crawl", "details", "--offline", "--shard", "2", "--shards", "2"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestCrawlDetailsOfflineWithoutHorses(t *testing.T) {
	useMemoryApp(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"crawl", "details", "--offline"}, &out))
	assert.Contains(t, out.String(), "fetched")
}

func TestMigrateNeedsDSN(t *testing.T) {
	useMemoryApp(t)

	err := run(context.Background(), []string{"migrate"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.dsn")
}

func TestParseDay(t *testing.T) {
	day, err := parseDay("start", "20240106")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC), day)

	_, err = parseDay("start", "2024")
	require.Error(t, err)
}

func TestDayRangeDefaults(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2024-03-09 23:30 UTC is already the 10th in Tokyo.
	today := time.Date(2024, time.March, 9, 23, 30, 0, 0, time.UTC).In(tokyo)

	from, to, err := dayRange(defaultStart, "", today)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC), to)

	_, to, err = dayRange("20240101", "20240131", today)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), to)

	_, _, err = dayRange("20240101", "31-01-2024", today)
	require.Error(t, err)
}

func TestCrawlRacesFlagDefaults(t *testing.T) {
	cmd := newCrawlRacesCmd()
	assert.Equal(t, "20080101", cmd.Flags().Lookup("start").DefValue)
	assert.Empty(t, cmd.Flags().Lookup("end").DefValue)
	_, required := cmd.Flags().Lookup("start").Annotations[cobra.BashCompOneRequiredFlag]
	assert.False(t, required)
}
