package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

const (
	payoutCells   = 3
	payoutSuffix  = "円"
	ninkiSuffix   = "人気"
	singleStride  = 3
	comboJoinRune = "-"
)

// Payouts extracts the payout table. Every bet type is present with at least
// its cardinality; lines missing from the page are empty entries and dead
// heats add lines.
func Payouts(doc *goquery.Document) crawler.Payout {
	payout := crawler.NewPayout()
	doc.Find(".Result_Pay_Back tr").Each(func(_ int, tr *goquery.Selection) {
		classes := strings.Fields(strings.ToLower(tr.AttrOr("class", "")))
		if len(classes) == 0 {
			return
		}
		bet := crawler.BetType(classes[0])
		cells := tr.ChildrenFiltered("td")
		if cells.Length() != payoutCells {
			return
		}
		payout.Set(bet, payoutEntries(bet, cells.Eq(0), cells.Eq(1), cells.Eq(2)))
	})
	return payout
}

func payoutEntries(bet crawler.BetType, result, amount, ninki *goquery.Selection) []crawler.PayoutEntry {
	ninkiSpans := ninki.Find("span")
	n := ninkiSpans.Length()
	amounts := strings.Split(textOf(amount), payoutSuffix)

	entries := make([]crawler.PayoutEntry, n)
	for i := range entries {
		entry := crawler.PayoutEntry{
			Ninki:  strings.TrimSuffix(textOf(ninkiSpans.Eq(i)), ninkiSuffix),
			Result: payoutResult(bet, result, i),
		}
		if i < len(amounts) {
			entry.Payout = strings.TrimSpace(amounts[i])
		}
		entries[i] = entry
	}
	return entries
}

// payoutResult returns the winning horse numbers of the i-th line. Single
// bets list one number per three spans; combination bets list one ul per line.
func payoutResult(bet crawler.BetType, result *goquery.Selection, i int) string {
	if bet == crawler.BetTansho || bet == crawler.BetFukusho {
		return textOf(result.Find("span").Eq(i * singleStride))
	}
	var parts []string
	result.Find("ul").Eq(i).Find("li").Each(func(_ int, li *goquery.Selection) {
		if t := textOf(li); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.TrimLeft(strings.Join(parts, comboJoinRune), comboJoinRune)
}
