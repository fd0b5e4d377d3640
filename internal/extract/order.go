package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

const orderCellCount = 15

// orderColumns maps the cells of a finishing order row, by position, onto a RaceResultRow.
var orderColumns = [orderCellCount]func(*crawler.RaceResultRow, *goquery.Selection){
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.Rank = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.Waku = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.Umaban = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) {
		r.HorseName = ptr(textOf(c))
		r.HorseID = linkID(c, ruleHorseID)
	},
	func(r *crawler.RaceResultRow, c *goquery.Selection) {
		sex, age := splitSexAge(textOf(c))
		r.HorseSex, r.HorseAge = &sex, &age
	},
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.JockeyWeight = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) {
		r.JockeyName = ptr(textOf(c))
		r.JockeyID = linkID(c, ruleJockeyID)
	},
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.Time1 = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.Time2 = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.Odds1 = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.Odds2 = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.Time3 = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) { r.PassageRate = ptr(textOf(c)) },
	func(r *crawler.RaceResultRow, c *goquery.Selection) {
		place, name := splitTrainer(textOf(c))
		r.TrainerPlace, r.TrainerName = &place, &name
		r.TrainerID = linkID(c, ruleTrainerID)
	},
	func(r *crawler.RaceResultRow, c *goquery.Selection) {
		weight, delta := splitWeight(textOf(c))
		r.HorseWeight, r.HorseWeightDelta = &weight, delta
	},
}

// RaceOrder extracts one row per horse in finishing order. A row without
// exactly fifteen cells is kept as a placeholder carrying only the race id and
// position, so indexes stay aligned with the table.
func RaceOrder(doc *goquery.Document, raceID string) []crawler.RaceResultRow {
	rows := []crawler.RaceResultRow{}
	doc.Find("tr.HorseList").Each(func(i int, tr *goquery.Selection) {
		row := crawler.RaceResultRow{RaceID: raceID, Position: i + 1}
		cells := tr.ChildrenFiltered("td")
		if cells.Length() == orderCellCount {
			for col, apply := range orderColumns {
				apply(&row, cells.Eq(col))
			}
		}
		rows = append(rows, row)
	})
	return rows
}

func linkID(cell *goquery.Selection, r rule) *string {
	href, ok := cell.Find("a[href]").First().Attr("href")
	if !ok {
		return nil
	}
	id, ok := r.match(href)
	if !ok {
		return nil
	}
	return &id
}
