package extract

import (
	"errors"
	"fmt"
)

// ErrExtraction is the sentinel wrapped by every ExtractionError.
var ErrExtraction = errors.New("extraction failed")

// ExtractionError reports a parsing rule that did not match text the page did contain.
type ExtractionError struct {
	Rule  string
	Input string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("rule %s did not match %q", e.Rule, e.Input)
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtraction
}
