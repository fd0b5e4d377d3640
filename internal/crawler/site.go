package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Site holds the base URLs of every page family.
type Site struct {
	CalendarURL   string `mapstructure:"calendar_url"`
	RaceListURL   string `mapstructure:"race_list_url"`
	RaceResultURL string `mapstructure:"race_result_url"`
	HorseURL      string `mapstructure:"horse_url"`
	PedigreeURL   string `mapstructure:"pedigree_url"`
}

// DefaultSite returns the production netkeiba endpoints.
func DefaultSite() Site {
	return Site{
		CalendarURL:   "https://race.netkeiba.com/top/calendar.html",
		RaceListURL:   "https://race.netkeiba.com/top/race_list.html",
		RaceResultURL: "https://race.netkeiba.com/race/result.html",
		HorseURL:      "https://db.netkeiba.com/horse",
		PedigreeURL:   "https://db.netkeiba.com/horse/ped",
	}
}

// URL returns the address of the page identified by key.
func (s Site) URL(key PageKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	switch key.Kind {
	case KindCalendar:
		return withQuery(s.CalendarURL, url.Values{
			"year":  {strconv.Itoa(key.Year)},
			"month": {strconv.Itoa(int(key.Month))},
		})
	case KindRaceList:
		return withQuery(s.RaceListURL, url.Values{
			"kaisai_date": {key.Date().Format("20060102")},
		})
	case KindRaceResult:
		return withQuery(s.RaceResultURL, url.Values{"race_id": {key.ID}})
	case KindHorse:
		return strings.TrimRight(s.HorseURL, "/") + "/" + key.ID + "/", nil
	case KindPedigree:
		return strings.TrimRight(s.PedigreeURL, "/") + "/" + key.ID + "/", nil
	default:
		return "", fmt.Errorf("%w: no url for kind %s", ErrInvalidKey, key.Kind)
	}
}

func withQuery(base string, values url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}
