package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// RaceResult extracts every part of a race result page. The result is
// complete even when err is non-nil; err carries the header rules that failed.
func RaceResult(doc *goquery.Document, raceID string) (crawler.RaceResult, error) {
	info, err := RaceInfo(doc, raceID)
	return crawler.RaceResult{
		RaceID:  raceID,
		Info:    info,
		Order:   RaceOrder(doc, raceID),
		Payout:  Payouts(doc),
		LapPace: LapPace(doc),
	}, err
}
