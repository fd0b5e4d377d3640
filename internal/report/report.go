// Package report renders an extracted race as text tables.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// Print writes the race header, finishing order, payouts and lap pace of res to w.
func Print(w io.Writer, res crawler.RaceResult) error {
	for _, t := range []table.Writer{infoTable(res.Info), orderTable(res.Order), payoutTable(res.Payout), lapTable(res.LapPace)} {
		if t == nil {
			continue
		}
		t.SetStyle(table.StyleRounded)
		if _, err := fmt.Fprintln(w, t.Render()); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

func infoTable(info crawler.RaceInfo) table.Writer {
	t := table.NewWriter()
	t.SetTitle("Race %s", info.RaceID)
	t.AppendRows([]table.Row{
		{"No", val(info.No)},
		{"Name", val(info.Name)},
		{"Start", val(info.Time)},
		{"Surface", val(info.Kind)},
		{"Length", val(info.Length)},
		{"Direction", val(info.Direction)},
		{"Weather", val(info.Weather)},
		{"State", val(info.State)},
		{"Course", val(info.Course)},
	})
	for i, etc := range []*string{info.Etc1, info.Etc2, info.Etc3, info.Etc4, info.Etc5, info.Etc6, info.Etc7, info.Etc8} {
		if etc != nil {
			t.AppendRow(table.Row{fmt.Sprintf("Etc%d", i+1), *etc})
		}
	}
	return t
}

func orderTable(rows []crawler.RaceResultRow) table.Writer {
	if len(rows) == 0 {
		return nil
	}
	t := table.NewWriter()
	t.SetTitle("Order")
	t.AppendHeader(table.Row{"#", "Rank", "Waku", "Umaban", "Horse", "Sex", "Age", "Jockey", "Weight", "Time", "Margin", "Odds", "Pop", "3F", "Trainer", "Body"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.Position,
			val(r.Rank),
			val(r.Waku),
			val(r.Umaban),
			val(r.HorseName),
			val(r.HorseSex),
			val(r.HorseAge),
			val(r.JockeyName),
			val(r.JockeyWeight),
			val(r.Time1),
			val(r.Time2),
			val(r.Odds2),
			val(r.Odds1),
			val(r.Time3),
			val(r.TrainerPlace) + val(r.TrainerName),
			bodyWeight(r),
		})
	}
	return t
}

func payoutTable(p crawler.Payout) table.Writer {
	t := table.NewWriter()
	t.SetTitle("Payout")
	t.AppendHeader(table.Row{"Bet", "Result", "Payout", "Ninki"})
	for _, bet := range crawler.BetTypes {
		for _, e := range p[bet] {
			if e == (crawler.PayoutEntry{}) {
				continue
			}
			t.AppendRow(table.Row{string(bet), e.Result, e.Payout, e.Ninki})
		}
	}
	return t
}

func lapTable(pace crawler.LapPace) table.Writer {
	if len(pace) == 0 {
		return nil
	}
	t := table.NewWriter()
	t.SetTitle("Lap")
	// Segment labels such as "200m" go in a body row; header rows are upper-cased.
	labels, first, second := table.Row{""}, table.Row{"cumulative"}, table.Row{"split"}
	for _, seg := range pace {
		labels = append(labels, seg.Header)
		first = append(first, seg.HaronTime1)
		second = append(second, seg.HaronTime2)
	}
	t.AppendRows([]table.Row{labels, first, second})
	return t
}

func bodyWeight(r crawler.RaceResultRow) string {
	if r.HorseWeightDelta == nil {
		return val(r.HorseWeight)
	}
	return fmt.Sprintf("%s(%s)", val(r.HorseWeight), *r.HorseWeightDelta)
}

func val(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
