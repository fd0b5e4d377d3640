package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// LapPace extracts the furlong split table: a header row followed by the
// cumulative and per-furlong rows. Fewer than two data rows yield an empty pace.
func LapPace(doc *goquery.Document) crawler.LapPace {
	pace := crawler.LapPace{}
	rows := doc.Find("table.Race_HaronTime tr")
	if rows.Length() < 3 {
		return pace
	}
	headers := rows.Eq(0).Find("th")
	first := rows.Eq(1).Find("td")
	second := rows.Eq(2).Find("td")
	headers.Each(func(i int, th *goquery.Selection) {
		pace = append(pace, crawler.LapSegment{
			Header:     textOf(th),
			HaronTime1: textOf(first.Eq(i)),
			HaronTime2: textOf(second.Eq(i)),
		})
	})
	return pace
}
