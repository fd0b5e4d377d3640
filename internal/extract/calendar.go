package extract

import (
	"iter"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const calendarDateLayout = "20060102"

// CalendarDates yields the race days linked from a monthly calendar page, in
// document order. Dates are UTC midnights. A link whose trailing eight
// characters are not a YYYYMMDD date yields an *ExtractionError and iteration
// continues with the next cell.
func CalendarDates(doc *goquery.Document) iter.Seq2[time.Time, error] {
	return func(yield func(time.Time, error) bool) {
		doc.Find("table.Calendar_Table tr.Week td.RaceCellBox").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			href, ok := cell.Find("a[href]").First().Attr("href")
			if !ok {
				return true
			}
			return yield(parseCalendarHref(href))
		})
	}
}

func parseCalendarHref(href string) (time.Time, error) {
	if len(href) < len(calendarDateLayout) {
		return time.Time{}, &ExtractionError{Rule: "calendar_date", Input: href}
	}
	d, err := time.Parse(calendarDateLayout, href[len(href)-len(calendarDateLayout):])
	if err != nil {
		return time.Time{}, &ExtractionError{Rule: "calendar_date", Input: href}
	}
	return d, nil
}

// RaceIDs returns the race identifiers linked from a race list page in document order.
// Items whose first link does not point at a result page are skipped.
func RaceIDs(doc *goquery.Document) []string {
	ids := []string{}
	doc.Find("li.RaceList_DataItem").Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find("a").First().Attr("href")
		if !ok {
			return
		}
		if id, ok := ruleRaceListLink.match(href); ok {
			ids = append(ids, id)
		}
	})
	return ids
}
