// Package timeparse extracts and parses the one timestamp shape the bot
// understands: "YYYY-MM-DD HH:MM". Registration and due-detection share this
// parser so the two paths cannot drift apart.
package timeparse

import (
	"regexp"
	"time"
)

// Layout is the sole recognized timestamp shape.
const Layout = "2006-01-02 15:04"

var pattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}`)

// Extract finds the first valid timestamp phrase in free text. It returns
// false when no phrase matches or when the matched digits are not a real
// calendar time; the caller treats that as a log-only message, never an error.
// Past timestamps are returned as-is.
func Extract(text string, loc *time.Location) (time.Time, bool) {
	for _, m := range pattern.FindAllString(text, -1) {
		t, err := Parse(m, loc)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// Parse strictly parses a scheduledAt cell value in the fixed timezone.
func Parse(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(Layout, s, loc)
}

// Format renders a timestamp the way it is stored in the sheet.
func Format(t time.Time) string {
	return t.Format(Layout)
}
