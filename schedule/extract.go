// Package schedule pulls next-collection dates for waste categories out of a
// rendered council results page.
//
// Matching is deliberately loose: for every category label the whole document
// is searched for the first occurrence of the label followed, at any distance,
// by a "<weekday> <d/m/yyyy>" token. Two adjacent labels can therefore resolve
// to the same date, and no attempt is made to bind a date to the label's own
// card on the page.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidArgument is returned when the extractor is given malformed input.
var ErrInvalidArgument = errors.New("invalid argument")

// DefaultCategories are the waste streams listed on the Ryde "My area" page.
var DefaultCategories = []string{"General Waste", "Garden Organics", "Recycling"}

// weekdayDate matches the collection date token. The separator also accepts
// vertical tab, NEL and Unicode spaces so a rendered &nbsp; still matches.
const weekdayDate = `(Mon|Tue|Wed|Thu|Fri|Sat|Sun)[\s\v\x{85}\p{Z}]+(\d{1,2}/\d{1,2}/\d{4})`

var collectionDateRe = regexp.MustCompile(`(?i)^` + weekdayDate + `$`)

// CollectionDate is a weekday abbreviation and a slash-delimited date, kept
// exactly as they appeared on the page.
type CollectionDate struct {
	Weekday string
	Date    string
}

func (d CollectionDate) String() string {
	return d.Weekday + " " + d.Date
}

// ParseCollectionDate parses a value produced by CollectionDate.String.
func ParseCollectionDate(s string) (CollectionDate, error) {
	m := collectionDateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return CollectionDate{}, fmt.Errorf("%w: %q is not a collection date", ErrInvalidArgument, s)
	}
	return CollectionDate{Weekday: m[1], Date: m[2]}, nil
}

// Extractor holds the compiled patterns for a fixed list of categories.
// It is safe for concurrent use.
type Extractor struct {
	categories []string
	patterns   []*regexp.Regexp
}

// NewExtractor validates the category list and compiles one pattern per label.
func NewExtractor(categories []string) (*Extractor, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: category list is empty", ErrInvalidArgument)
	}

	seen := make(map[string]bool, len(categories))
	x := &Extractor{
		categories: make([]string, len(categories)),
		patterns:   make([]*regexp.Regexp, len(categories)),
	}
	for i, category := range categories {
		if strings.TrimSpace(category) == "" {
			return nil, fmt.Errorf("%w: category %d is blank", ErrInvalidArgument, i)
		}
		if seen[category] {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidArgument, category)
		}
		seen[category] = true

		x.categories[i] = category
		x.patterns[i] = regexp.MustCompile(`(?is)` + regexp.QuoteMeta(category) + `.*?` + weekdayDate)
	}
	return x, nil
}

// Categories returns a copy of the labels the extractor searches for.
func (x *Extractor) Categories() []string {
	return append([]string(nil), x.categories...)
}

// Extract searches html for every category. A category with no date is a
// normal outcome and is reported as an entry with a nil Date.
func (x *Extractor) Extract(html string) (*Result, error) {
	if !utf8.ValidString(html) {
		return nil, fmt.Errorf("%w: html is not valid UTF-8", ErrInvalidArgument)
	}

	result := &Result{Entries: make([]Entry, len(x.categories))}
	for i, re := range x.patterns {
		result.Entries[i].Category = x.categories[i]
		if m := re.FindStringSubmatch(html); m != nil {
			result.Entries[i].Date = &CollectionDate{Weekday: m[1], Date: m[2]}
		}
	}
	return result, nil
}

// Extract is a one-shot NewExtractor(categories).Extract(html).
func Extract(html string, categories []string) (*Result, error) {
	x, err := NewExtractor(categories)
	if err != nil {
		return nil, err
	}
	return x.Extract(html)
}
