package main

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"rydewaste/schedule"
)

func generateUID(eventTitle, eventStartDate, eventLocation string) string {
	// Concatenate the constant attributes
	concatenatedAttributes := eventTitle + eventStartDate + eventLocation

	hash := sha256.Sum256([]byte(concatenatedAttributes))

	return fmt.Sprintf("%x@rydewaste.com", hash)
}

// foldLine splits a content line into 74-octet chunks joined by CRLF and a
// leading space, as iCalendar requires.
func foldLine(s string) string {
	const maxLen = 74
	var result strings.Builder

	for x := 0; x < len(s); x += maxLen {
		end := x + maxLen
		if end > len(s) {
			end = len(s)
		}
		if x > 1 {
			result.WriteString(" ")
		}
		result.WriteString(s[x:end])
		if end != len(s) {
			result.WriteString("\r\n")
		}
	}

	return result.String()
}

var weekdayAbbrev = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// parseCollectionDay turns a scraped date into a calendar day for ICS output.
// The council prints dates day-first; month-first is only accepted when the
// weekday rules out day-first.
func parseCollectionDay(d schedule.CollectionDate) (time.Time, error) {
	weekday, ok := weekdayAbbrev[strings.ToLower(d.Weekday)]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown weekday %q", d.Weekday)
	}

	for _, layout := range []string{"2/1/2006", "1/2/2006"} {
		t, err := time.Parse(layout, d.Date)
		if err == nil && t.Weekday() == weekday {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q does not fall on a %s", d.Date, d.Weekday)
}
