package main

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pageSummary is what the results page looked like, for diagnostics only.
// It has no influence on extraction.
type pageSummary struct {
	Title       string
	Headings    []string
	FormPresent bool
}

func inspectPage(html string) (*pageSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	summary := &pageSummary{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		FormPresent: doc.Find(addressInputSelector).Length() > 0,
	}
	doc.Find("h1, h2, h3, h4").Each(func(i int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			summary.Headings = append(summary.Headings, text)
		}
	})
	return summary, nil
}

// notFoundHints explains the usual reasons for a page with no dates.
func notFoundHints(summary *pageSummary) []string {
	hints := []string{
		"The address wasn't recognized",
		"The page structure has changed",
		"The address is outside the Ryde area",
	}
	if summary == nil {
		return hints
	}
	if !summary.FormPresent {
		hints = append(hints, "The address search form was not on the page (title: "+summary.Title+")")
	}
	if len(summary.Headings) == 0 {
		hints = append(hints, "The page had no headings; it may not have finished rendering")
	}
	return hints
}
