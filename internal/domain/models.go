// Package domain provides types shared across modules.
package domain

import (
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar dates
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date in UTC
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, NewValidationError("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// FormatDate formats a time as a YYYY-MM-DD calendar date
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// TruncateToDate drops the time of day so dates compare by calendar day
func TruncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
