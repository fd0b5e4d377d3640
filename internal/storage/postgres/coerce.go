package postgres

import (
	"strconv"
	"strings"
)

// toInt converts scraped text to an integer column value; text that is not a
// plain integer becomes NULL.
func toInt(s *string) *int32 {
	if s == nil {
		return nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(*s), 10, 32)
	if err != nil {
		return nil
	}
	n := int32(v)
	return &n
}

// toFloat is toInt for real columns.
func toFloat(s *string) *float64 {
	if s == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*s), 64)
	if err != nil {
		return nil
	}
	return &v
}
