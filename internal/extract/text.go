package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ParseDocument parses cached markup into a goquery document.
func ParseDocument(markup []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// normalize strips line breaks and surrounding whitespace.
func normalize(s string) string {
	return strings.TrimSpace(lineBreaks.Replace(s))
}

func textOf(sel *goquery.Selection) string {
	return normalize(sel.Text())
}

func ptr(s string) *string {
	return &s
}

// optText returns the normalized text of sel, or nil when sel is empty.
func optText(sel *goquery.Selection) *string {
	if sel.Length() == 0 {
		return nil
	}
	return ptr(textOf(sel))
}

// rule is a named pattern whose first capture group is the extracted value.
type rule struct {
	name string
	re   *regexp.Regexp
}

func newRule(name, pattern string) rule {
	return rule{name: name, re: regexp.MustCompile(pattern)}
}

func (r rule) match(s string) (string, bool) {
	m := r.re.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// find is match with the failure reported as an ExtractionError.
func (r rule) find(s string) (*string, error) {
	v, ok := r.match(s)
	if !ok {
		return nil, &ExtractionError{Rule: r.name, Input: s}
	}
	return &v, nil
}

var (
	ruleStartTime    = newRule("start_time", `(\d{1,2}:\d{2})発走`)
	ruleSurface      = newRule("surface", `(芝|ダ|障)`)
	ruleLength       = newRule("length", `(\d+)m`)
	ruleDirection    = newRule("direction", `[(（]\s*([^)）]*?)\s*[)）]`)
	ruleWeather      = newRule("weather", `天候\s*[:：]\s*(\S+)`)
	ruleState        = newRule("state", `馬場\s*[:：]\s*(\S+)`)
	ruleRaceNumber   = newRule("race_number", `(\d+)\s*R`)
	ruleRaceListLink = newRule("race_list_link", `\.\./race/result\.html\?race_id=([^&]+)&rf=race_list`)
	ruleHorseID      = newRule("horse_id", `/horse/(\w+)`)
	ruleJockeyID     = newRule("jockey_id", `/jockey/(?:result/recent/)?(\w+)`)
	ruleTrainerID    = newRule("trainer_id", `/trainer/(?:result/recent/)?(\w+)`)
	ruleWeightDelta  = newRule("weight_delta", `\(([+-]?\d+)\)`)
)

// splitPrefix cuts s after n runes.
func splitPrefix(s string, n int) (string, string) {
	i := 0
	for n > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n--
	}
	return s[:i], s[i:]
}

// splitSexAge splits "牡3" into "牡" and "3".
func splitSexAge(s string) (string, string) {
	return splitPrefix(s, 1)
}

// splitTrainer splits "美浦国枝栄" into the two-character affiliation and the name.
func splitTrainer(s string) (string, string) {
	place, name := splitPrefix(s, 2)
	return place, strings.TrimSpace(name)
}

// splitWeight splits "480(+4)" into "480" and "+4". The delta is nil without a parenthesized value.
func splitWeight(s string) (string, *string) {
	weight, _ := splitPrefix(s, 3)
	delta, ok := ruleWeightDelta.match(s)
	if !ok {
		return weight, nil
	}
	return weight, &delta
}
