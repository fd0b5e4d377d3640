package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteURL(t *testing.T) {
	t.Parallel()

	site := DefaultSite()
	tests := []struct {
		key  PageKey
		want string
	}{
		{CalendarKey(2024, time.January), "https://race.netkeiba.com/top/calendar.html?month=1&year=2024"},
		{
			RaceListKey(time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)),
			"https://race.netkeiba.com/top/race_list.html?kaisai_date=20240106",
		},
		{RaceResultKey("202406010101"), "https://race.netkeiba.com/race/result.html?race_id=202406010101"},
		{HorseKey("2019105219"), "https://db.netkeiba.com/horse/2019105219/"},
		{PedigreeKey("2019105219"), "https://db.netkeiba.com/horse/ped/2019105219/"},
	}
	for _, tc := range tests {
		got, err := site.URL(tc.key)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestSiteURLRejectsInvalidKey(t *testing.T) {
	t.Parallel()

	_, err := DefaultSite().URL(PageKey{Kind: KindHorse})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestPayoutPadding(t *testing.T) {
	t.Parallel()

	p := NewPayout()
	require.Len(t, p, len(BetTypes))
	for _, b := range BetTypes {
		assert.Len(t, p[b], b.Cardinality(), string(b))
	}

	p.Set(BetFukusho, []PayoutEntry{{Payout: "110", Ninki: "1", Result: "5"}})
	require.Len(t, p[BetFukusho], 3)
	assert.Equal(t, "110", p[BetFukusho][0].Payout)
	assert.Equal(t, PayoutEntry{}, p[BetFukusho][2])

	p.Set(BetTansho, []PayoutEntry{{Payout: "1"}, {Payout: "2"}})
	require.Len(t, p[BetTansho], 2, "dead heat keeps both winners")
	assert.Equal(t, "2", p[BetTansho][1].Payout)

	p.Set(BetTansho, nil)
	assert.Equal(t, []PayoutEntry{{}}, p[BetTansho])

	p.Set(BetType("win5"), []PayoutEntry{{Payout: "9"}})
	_, ok := p[BetType("win5")]
	assert.False(t, ok)
}

func TestLoadFailureUnwrap(t *testing.T) {
	t.Parallel()

	err := &LoadFailure{Key: HorseKey("1"), URL: "u", Reason: "status 404", Err: ErrNotFound}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "horse:1")
}
