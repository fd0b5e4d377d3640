package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
	"github.com/JakeFAU/keiba-crawler/internal/dispatcher"
	"github.com/JakeFAU/keiba-crawler/internal/id/uuid"
	"github.com/JakeFAU/keiba-crawler/internal/sink"
	"github.com/JakeFAU/keiba-crawler/internal/storage/memory"
	"github.com/JakeFAU/keiba-crawler/internal/worker"
)

var jst = time.FixedZone("JST", 9*60*60)

type siteFetcher struct {
	mu    sync.Mutex
	pages map[crawler.PageKey]string
	calls map[crawler.PageKey]int
}

func newSiteFetcher() *siteFetcher {
	return &siteFetcher{pages: map[crawler.PageKey]string{}, calls: map[crawler.PageKey]int{}}
}

func (f *siteFetcher) Fetch(_ context.Context, key crawler.PageKey) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	page, ok := f.pages[key]
	if !ok {
		return nil, &crawler.LoadFailure{Key: key, Reason: "status 404"}
	}
	return []byte(page), nil
}

func (f *siteFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *siteFetcher) callsFor(key crawler.PageKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

func calendarPage(dates ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="Calendar_Table"><tr class="Week">`)
	for _, d := range dates {
		fmt.Fprintf(&b, `<td class="RaceCellBox"><a href="../top/race_list.html?kaisai_date=%s">%s</a></td>`, d, d)
	}
	b.WriteString(`</tr></table></body></html>`)
	return b.String()
}

func raceListPage(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="RaceTopRace"><ul>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<li class="RaceList_DataItem"><a href="../race/result.html?race_id=%s&rf=race_list">race</a></li>`, id)
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

func resultPage(start string, horseIDs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="RaceList_NameBox">`)
	b.WriteString(`<span class="RaceNum">1R</span><h1 class="RaceName">3歳未勝利</h1>`)
	fmt.Fprintf(&b, `<div class="RaceData01">%s / 芝1600m (右) / 天候:晴 / 馬場:良</div></div>`, start)
	b.WriteString(`<table id="All_Result_Table">`)
	for i, id := range horseIDs {
		fmt.Fprintf(&b, `<tr class="HorseList"><td>%d</td><td>1</td><td>%d</td>`, i+1, i+1)
		fmt.Fprintf(&b, `<td><a href="https://db.netkeiba.com/horse/%s/">Horse</a></td>`, id)
		b.WriteString(`<td>牡3</td><td>56.0</td><td><a href="/jockey/result/recent/01157/">騎手</a></td>`)
		b.WriteString(`<td>1:34.5</td><td></td><td>1</td><td>2.3</td><td>34.0</td><td>1-1</td>`)
		b.WriteString(`<td>美浦<a href="/trainer/result/recent/01126/">調教師</a></td><td>480(+2)</td></tr>`)
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

// newSite serves January 2024: three kaisai days, five races. Race C has an
// unreadable start time and race D is missing from the site.
func newSite() *siteFetcher {
	f := newSiteFetcher()
	f.pages[crawler.CalendarKey(2024, time.January)] = calendarPage("20240106", "20240107", "20240108")
	f.pages[crawler.RaceListKey(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))] = raceListPage("A1", "B1")
	f.pages[crawler.RaceListKey(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC))] = raceListPage("B1", "C1", "D1")
	f.pages[crawler.RaceListKey(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))] = raceListPage("E1")
	f.pages[crawler.RaceResultKey("A1")] = resultPage("10:01発走", "2021100001", "2021100002")
	f.pages[crawler.RaceResultKey("B1")] = resultPage("10:30発走", "2021100002", "2021100003", "2021100004")
	f.pages[crawler.RaceResultKey("C1")] = resultPage("発走未定", "2021100005")
	f.pages[crawler.RaceResultKey("E1")] = resultPage("11:00発走", "2021100006")
	return f
}

func newOrchestrator(
	t *testing.T,
	fetcher crawler.Fetcher,
	cache crawler.PageCache,
	rs crawler.ResultSink,
	now time.Time,
) *Orchestrator {
	t.Helper()
	workers := make([]*worker.Worker, 2)
	for i := range workers {
		workers[i] = worker.New(i, fetcher, cache, noPause{}, worker.Config{}, zap.NewNop())
	}
	return New(cache, dispatcher.New(workers), rs, fixedClock{now: now}, uuid.New(), Config{Workers: 3, Location: jst}, zap.NewNop())
}

var (
	janStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	janEnd   = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	// 2024-01-07 20:00 JST.
	crawlTime = time.Date(2024, 1, 7, 11, 0, 0, 0, time.UTC)
)

func TestRunRaces(t *testing.T) {
	t.Parallel()

	site := newSite()
	cache := memory.NewPageCache()
	rs := sink.NewMemory()
	o := newOrchestrator(t, site, cache, rs, crawlTime)

	summary, err := o.RunRaces(context.Background(), janStart, janEnd)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, PhaseDone, o.Phase())

	assert.Equal(t, 2, summary.Races)
	assert.Equal(t, 5, summary.Rows)
	// calendar + two lists + A1, B1, C1
	assert.Equal(t, 6, summary.Fetched)
	assert.Zero(t, summary.CacheHits)

	extractFailures := summary.FailuresAt(StageExtract)
	require.Len(t, extractFailures, 1)
	assert.Equal(t, crawler.RaceResultKey("C1"), extractFailures[0].Key)
	fetchFailures := summary.FailuresAt(StageFetch)
	require.Len(t, fetchFailures, 1)
	assert.Equal(t, crawler.RaceResultKey("D1"), fetchFailures[0].Key)

	infos := rs.RaceInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, "A1", infos[0].RaceID)
	assert.Equal(t, "10:01", *infos[0].Time)
	assert.Len(t, rs.Rows("B1"), 3)

	// B1 is linked from two lists but owned by one fetch.
	assert.Equal(t, 1, site.callsFor(crawler.RaceResultKey("B1")))

	status := o.Status()
	assert.Equal(t, "done", status.Phase)
	assert.Equal(t, summary.RunID, status.RunID)
	assert.Equal(t, 2, status.Failures)
}

func TestRunRacesExcludesFutureDates(t *testing.T) {
	t.Parallel()

	site := newSite()
	cache := memory.NewPageCache()
	o := newOrchestrator(t, site, cache, sink.NewMemory(), crawlTime)

	_, err := o.RunRaces(context.Background(), janStart, janEnd)
	require.NoError(t, err)

	assert.Equal(t, 1, site.callsFor(crawler.RaceListKey(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC))),
		"today is included")
	assert.Zero(t, site.callsFor(crawler.RaceListKey(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))),
		"tomorrow is excluded")
	assert.Zero(t, site.callsFor(crawler.RaceResultKey("E1")))
}

func TestRunRacesIsIdempotent(t *testing.T) {
	t.Parallel()

	site := newSite()
	delete(site.pages, crawler.RaceListKey(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)))
	cache := memory.NewPageCache()

	first := sink.NewMemory()
	s1, err := newOrchestrator(t, site, cache, first, crawlTime).RunRaces(context.Background(), janStart, janEnd)
	require.NoError(t, err)
	fetchesAfterFirst := site.total()

	// The list for the 7th is missing from the site, so it is the only key fetched again.
	second := sink.NewMemory()
	s2, err := newOrchestrator(t, site, cache, second, crawlTime).RunRaces(context.Background(), janStart, janEnd)
	require.NoError(t, err)

	assert.Equal(t, fetchesAfterFirst+1, site.total(), "only the uncached list is fetched again")
	assert.Equal(t, s1.Fetched, s2.CacheHits)
	assert.Zero(t, s2.Fetched)
	assert.Equal(t, first.RaceInfos(), second.RaceInfos())
	assert.Equal(t, first.Rows("A1"), second.Rows("A1"))
	assert.Equal(t, first.Rows("B1"), second.Rows("B1"))
}

func TestRunRacesSecondRunFetchesNothing(t *testing.T) {
	t.Parallel()

	site := newSiteFetcher()
	site.pages[crawler.CalendarKey(2024, time.January)] = calendarPage("20240106")
	site.pages[crawler.RaceListKey(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))] = raceListPage("A1")
	site.pages[crawler.RaceResultKey("A1")] = resultPage("10:01発走", "2021100001")
	cache := memory.NewPageCache()

	_, err := newOrchestrator(t, site, cache, sink.NewMemory(), crawlTime).RunRaces(context.Background(), janStart, janEnd)
	require.NoError(t, err)
	require.Equal(t, 3, site.total())

	s2, err := newOrchestrator(t, site, cache, sink.NewMemory(), crawlTime).RunRaces(context.Background(), janStart, janEnd)
	require.NoError(t, err)
	assert.Equal(t, 3, site.total())
	assert.Equal(t, 3, s2.CacheHits)
	assert.Equal(t, 1, s2.Races)
	assert.Empty(t, s2.Failures)
}

func TestRunRacesRejectsInvertedRange(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, newSiteFetcher(), memory.NewPageCache(), sink.NewMemory(), crawlTime)
	_, err := o.RunRaces(context.Background(), janEnd, janStart)
	require.Error(t, err)
	assert.Equal(t, PhaseNotStarted, o.Phase())
}

// rejectingSink refuses the race info of one race and one result row of
// another, storing everything else.
type rejectingSink struct {
	*sink.Memory
	err error
}

func (r *rejectingSink) InsertRaceInfo(ctx context.Context, info crawler.RaceInfo) error {
	if info.RaceID == "A1" {
		return r.err
	}
	return r.Memory.InsertRaceInfo(ctx, info)
}

func (r *rejectingSink) InsertRaceResultRow(ctx context.Context, row crawler.RaceResultRow) error {
	if row.RaceID == "B1" && row.Position == 2 {
		return r.err
	}
	return r.Memory.InsertRaceResultRow(ctx, row)
}

func TestRunRacesRecordsSinkFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	rs := &rejectingSink{Memory: sink.NewMemory(), err: boom}
	o := newOrchestrator(t, newSite(), memory.NewPageCache(), rs, crawlTime)

	summary, err := o.RunRaces(context.Background(), janStart, janEnd)
	require.NoError(t, err, "sink errors are recorded, not returned")
	assert.Equal(t, PhaseDone, o.Phase())

	sinkFailures := summary.FailuresAt(StageSink)
	require.Len(t, sinkFailures, 2)
	byKey := map[crawler.PageKey]error{}
	for _, f := range sinkFailures {
		byKey[f.Key] = f.Err
	}
	require.ErrorIs(t, byKey[crawler.RaceResultKey("A1")], boom)
	require.ErrorIs(t, byKey[crawler.RaceResultKey("B1")], boom)
	assert.Contains(t, byKey[crawler.RaceResultKey("B1")].Error(), "row 2")

	// A1 is dropped whole; B1 keeps the rows that were accepted.
	assert.Equal(t, 1, summary.Races)
	assert.Equal(t, 2, summary.Rows)
	infos := rs.RaceInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, "B1", infos[0].RaceID)
	assert.Empty(t, rs.Rows("A1"))
	assert.Len(t, rs.Rows("B1"), 2)

	assert.Len(t, summary.FailuresAt(StageExtract), 1)
	assert.Len(t, summary.FailuresAt(StageFetch), 1)
}

func TestRunRacesCanceled(t *testing.T) {
	t.Parallel()

	site := newSite()
	o := newOrchestrator(t, site, memory.NewPageCache(), sink.NewMemory(), crawlTime)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunRaces(ctx, janStart, janEnd)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, site.total())
}

func TestSelectDatesUsesLocation(t *testing.T) {
	t.Parallel()

	// 2024-01-07 16:00 UTC is already 2024-01-08 in Tokyo.
	now := time.Date(2024, 1, 7, 16, 0, 0, 0, time.UTC)
	o := newOrchestrator(t, newSiteFetcher(), memory.NewPageCache(), sink.NewMemory(), now)

	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	got := o.selectDates([]time.Time{day(9), day(8), day(7), day(8), day(2)}, day(3), day(31))
	assert.Equal(t, []time.Time{day(7), day(8)}, got)
}

func TestCalendarKeys(t *testing.T) {
	t.Parallel()

	keys := calendarKeys(time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []crawler.PageKey{
		crawler.CalendarKey(2023, time.November),
		crawler.CalendarKey(2023, time.December),
		crawler.CalendarKey(2024, time.January),
		crawler.CalendarKey(2024, time.February),
	}, keys)
	assert.Len(t, calendarKeys(janStart, janStart), 1)
}

func TestRunDetails(t *testing.T) {
	t.Parallel()

	rs := sink.NewMemory()
	ctx := context.Background()
	site := newSiteFetcher()
	var ids []string
	for i := range 20 {
		id := fmt.Sprintf("20191%05d", i)
		ids = append(ids, id)
		hid := id
		require.NoError(t, rs.InsertRaceResultRow(ctx, crawler.RaceResultRow{RaceID: "R1", Position: i + 1, HorseID: &hid}))
		site.pages[crawler.HorseKey(id)] = "<html>horse</html>"
		site.pages[crawler.PedigreeKey(id)] = "<html>ped</html>"
	}
	cache := memory.NewPageCache()

	owned := 0
	for shard := range 3 {
		o := newOrchestrator(t, site, cache, rs, crawlTime)
		summary, err := o.RunDetails(ctx, Shard{Index: shard, Count: 3})
		require.NoError(t, err)
		assert.Empty(t, summary.Failures)
		owned += summary.Fetched / 2
	}
	assert.Equal(t, len(ids), owned, "shards partition the horses")
	for _, id := range ids {
		assert.Equal(t, 1, site.callsFor(crawler.HorseKey(id)), id)
		assert.Equal(t, 1, site.callsFor(crawler.PedigreeKey(id)), id)
	}

	_, err := newOrchestrator(t, site, cache, rs, crawlTime).RunDetails(ctx, Shard{Index: 3, Count: 3})
	require.Error(t, err)
}

func TestShardOwnsIsStable(t *testing.T) {
	t.Parallel()

	s := Shard{Index: 1, Count: 4}
	for _, id := range []string{"2019105219", "2021100001", "x"} {
		assert.Equal(t, s.Owns(id), s.Owns(id))
		owners := 0
		for i := range 4 {
			if (Shard{Index: i, Count: 4}).Owns(id) {
				owners++
			}
		}
		assert.Equal(t, 1, owners, id)
	}
	assert.True(t, Shard{Index: 0, Count: 1}.Owns("anything"))
	assert.Error(t, Shard{Count: 0}.Validate())
	assert.Error(t, Shard{Index: -1, Count: 2}.Validate())
	assert.NoError(t, Shard{Index: 1, Count: 2}.Validate())
}

func TestPhaseString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fetching_race_lists", PhaseFetchingRaceLists.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
