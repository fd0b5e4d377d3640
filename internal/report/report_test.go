package report

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

func strp(s string) *string { return &s }

func sampleResult() crawler.RaceResult {
	payout := crawler.NewPayout()
	payout.Set(crawler.BetTansho, []crawler.PayoutEntry{{Payout: "920", Ninki: "5", Result: "2"}})
	return crawler.RaceResult{
		RaceID: "202406010111",
		Info: crawler.RaceInfo{
			RaceID: "202406010111",
			Name:   strp("中山金杯"),
			Course: strp("中山"),
			Etc7:   strp("17頭"),
		},
		Order: []crawler.RaceResultRow{
			{RaceID: "202406010111", Position: 1, HorseName: strp("リカンカブール"), HorseWeight: strp("488"), HorseWeightDelta: strp("+4")},
			{RaceID: "202406010111", Position: 2},
		},
		Payout:  payout,
		LapPace: crawler.LapPace{{Header: "200m", HaronTime1: "12.4", HaronTime2: "12.4"}},
	}
}

func TestPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "Race 202406010111")
	assert.Contains(t, out, "中山金杯")
	assert.Contains(t, out, "Etc7")
	assert.NotContains(t, out, "Etc1")
	assert.Contains(t, out, "リカンカブール")
	assert.Contains(t, out, "488(+4)")
	assert.Contains(t, out, "tansho")
	assert.NotContains(t, out, "fukusho", "empty payout lines are omitted")
	assert.Contains(t, out, "200m")
	assert.Contains(t, out, "12.4")
}

func TestPrintWithoutOrderOrLaps(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, crawler.RaceResult{RaceID: "1", Info: crawler.RaceInfo{RaceID: "1"}, Payout: crawler.NewPayout()}))
	assert.Contains(t, buf.String(), "Race 1")
	assert.NotContains(t, buf.String(), "Order")
	assert.NotContains(t, buf.String(), "Lap")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestPrintWriteError(t *testing.T) {
	t.Parallel()

	assert.Error(t, Print(failingWriter{}, sampleResult()))
}
