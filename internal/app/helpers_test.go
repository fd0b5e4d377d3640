package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
	"github.com/JakeFAU/keiba-crawler/internal/orchestrator"
)

func jan(day int) time.Time {
	return time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC)
}

func orchestratorShard() orchestrator.Shard {
	return orchestrator.Shard{Index: 0, Count: 1}
}

// seedJanuary caches one kaisai day with a single race.
func seedJanuary(t *testing.T, cache crawler.PageCache) {
	t.Helper()
	ctx := context.Background()
	pages := map[crawler.PageKey]string{
		crawler.CalendarKey(2024, time.January): `<table class="Calendar_Table"><tr class="Week">` +
			`<td class="RaceCellBox"><a href="../top/race_list.html?kaisai_date=20240106">6</a></td></tr></table>`,
		crawler.RaceListKey(jan(6)): `<ul><li class="RaceList_DataItem">` +
			`<a href="../race/result.html?race_id=202406010101&rf=race_list">1R</a></li></ul>`,
		crawler.RaceResultKey("202406010101"): `<div class="RaceList_NameBox"><span class="RaceNum">1R</span>` +
			`<h1 class="RaceName">3歳未勝利</h1>` +
			`<div class="RaceData01">10:05発走 / ダ1200m (右) / 天候:晴 / 馬場:良</div></div>`,
	}
	for key, markup := range pages {
		require.NoError(t, cache.Write(ctx, key, []byte(markup)))
	}
}
