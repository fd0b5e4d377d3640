package crawler

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"time"
)

// PageKind enumerates the page families the crawler understands.
type PageKind int

const (
	// KindCalendar is a monthly race calendar page.
	KindCalendar PageKind = iota + 1
	// KindRaceList is the list of races held on one day.
	KindRaceList
	// KindRaceResult is the result page of a single race.
	KindRaceResult
	// KindHorse is a horse profile page.
	KindHorse
	// KindPedigree is a horse pedigree page.
	KindPedigree
)

// String returns the cache directory name of the kind.
func (k PageKind) String() string {
	switch k {
	case KindCalendar:
		return "race_calendar"
	case KindRaceList:
		return "race_list"
	case KindRaceResult:
		return "race_result"
	case KindHorse:
		return "horse"
	case KindPedigree:
		return "ped"
	default:
		return "unknown"
	}
}

var identifierPattern = regexp.MustCompile(`^[0-9A-Za-z]+$`)

// PageKey identifies one cacheable page. Only the fields relevant to Kind are set.
type PageKey struct {
	Kind  PageKind
	Year  int
	Month time.Month
	Day   int
	ID    string
}

// CalendarKey returns the key of the calendar page for year/month.
func CalendarKey(year int, month time.Month) PageKey {
	return PageKey{Kind: KindCalendar, Year: year, Month: month}
}

// RaceListKey returns the key of the race list page held on date.
func RaceListKey(date time.Time) PageKey {
	return PageKey{Kind: KindRaceList, Year: date.Year(), Month: date.Month(), Day: date.Day()}
}

// RaceResultKey returns the key of a race result page.
func RaceResultKey(raceID string) PageKey {
	return PageKey{Kind: KindRaceResult, ID: raceID}
}

// HorseKey returns the key of a horse profile page.
func HorseKey(horseID string) PageKey {
	return PageKey{Kind: KindHorse, ID: horseID}
}

// PedigreeKey returns the key of a horse pedigree page.
func PedigreeKey(horseID string) PageKey {
	return PageKey{Kind: KindPedigree, ID: horseID}
}

// Validate reports whether the key carries every field its kind needs.
func (k PageKey) Validate() error {
	switch k.Kind {
	case KindCalendar:
		if k.Year <= 0 || k.Month < time.January || k.Month > time.December {
			return fmt.Errorf("%w: calendar key needs year and month, got %d-%d", ErrInvalidKey, k.Year, k.Month)
		}
	case KindRaceList:
		if k.Year <= 0 || !isCalendarDay(k.Year, k.Month, k.Day) {
			return fmt.Errorf("%w: race list key needs a date, got %d-%d-%d", ErrInvalidKey, k.Year, k.Month, k.Day)
		}
	case KindRaceResult, KindHorse, KindPedigree:
		if !identifierPattern.MatchString(k.ID) {
			return fmt.Errorf("%w: %s key has invalid id %q", ErrInvalidKey, k.Kind, k.ID)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidKey, int(k.Kind))
	}
	return nil
}

// isCalendarDay reports whether year-month-day names a real day, so Feb 30
// is rejected rather than normalized into March.
func isCalendarDay(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December || day < 1 {
		return false
	}
	y, m, d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Date()
	return y == year && m == month && d == day
}

// Name is the derived file stem of the key. Month and day are not zero padded.
func (k PageKey) Name() string {
	switch k.Kind {
	case KindCalendar:
		return strconv.Itoa(k.Year) + "-" + strconv.Itoa(int(k.Month))
	case KindRaceList:
		return strconv.Itoa(k.Year) + "-" + strconv.Itoa(int(k.Month)) + "-" + strconv.Itoa(k.Day)
	default:
		return k.ID
	}
}

// Path returns the slash separated cache path of the key, e.g. race_list/2024-1-6.html.
// It is a pure function of the key.
func (k PageKey) Path() string {
	return path.Join(k.Kind.String(), k.Name()+".html")
}

// Date returns the calendar date of a race list key as a UTC midnight.
func (k PageKey) Date() time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, time.UTC)
}

func (k PageKey) String() string {
	return k.Kind.String() + ":" + k.Name()
}
