package extract

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// courseSpanFields maps the spans of the second data line onto RaceInfo.
// Index 1 is the racecourse name.
var courseSpanFields = []func(*crawler.RaceInfo) **string{
	func(i *crawler.RaceInfo) **string { return &i.Etc1 },
	func(i *crawler.RaceInfo) **string { return &i.Course },
	func(i *crawler.RaceInfo) **string { return &i.Etc2 },
	func(i *crawler.RaceInfo) **string { return &i.Etc3 },
	func(i *crawler.RaceInfo) **string { return &i.Etc4 },
	func(i *crawler.RaceInfo) **string { return &i.Etc5 },
	func(i *crawler.RaceInfo) **string { return &i.Etc6 },
	func(i *crawler.RaceInfo) **string { return &i.Etc7 },
	func(i *crawler.RaceInfo) **string { return &i.Etc8 },
}

const raceDataSegments = 4

// RaceInfo extracts the race header. The returned info is always usable; a
// non-nil error lists every rule that failed on text present in the page.
func RaceInfo(doc *goquery.Document, raceID string) (crawler.RaceInfo, error) {
	info := crawler.RaceInfo{RaceID: raceID}
	box := doc.Find(".RaceList_NameBox").First()
	if box.Length() == 0 {
		return info, nil
	}

	if num, ok := ruleRaceNumber.match(textOf(box.Find(".RaceNum").First())); ok {
		info.No = &num
	}
	info.Name = optText(box.Find(".RaceName").First())

	var err error
	if data := box.Find(".RaceData01").First(); data.Length() > 0 {
		err = applyRaceData(&info, textOf(data))
	}

	spans := box.Find(".RaceData02 span")
	if spans.Length() >= len(courseSpanFields) {
		for i, field := range courseSpanFields {
			*field(&info) = ptr(textOf(spans.Eq(i)))
		}
	}
	return info, err
}

// applyRaceData parses "15:40発走 / 芝2400m (左 A) / 天候:晴 / 馬場:良".
func applyRaceData(info *crawler.RaceInfo, text string) error {
	segments := strings.Split(text, "/")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}

	var errs []error
	collect := func(dst **string, r rule, s string) {
		v, err := r.find(s)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}

	collect(&info.Time, ruleStartTime, segments[0])
	if len(segments) < raceDataSegments {
		return errors.Join(errs...)
	}
	collect(&info.Kind, ruleSurface, segments[1])
	collect(&info.Length, ruleLength, segments[1])
	collect(&info.Direction, ruleDirection, segments[1])
	collect(&info.Weather, ruleWeather, segments[2])
	collect(&info.State, ruleState, segments[3])
	return errors.Join(errs...)
}
