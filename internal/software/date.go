package software

import (
	"strings"
	"time"
)

// Layouts tried in order; the first match wins. 01/02/2006 precedes
// 02/01/2006, so ambiguous day/month strings read as month first.
var installDateLayouts = []string{
	"20060102",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"20060102150405",
}

// Looser forms seen in the wild from older installers.
var fallbackDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"2006/1/2",
	"1/2/2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2 January 2006",
}

// ParseInstallDate converts an InstallDate registry string to a calendar
// date in UTC. It returns nil for empty or unparseable input.
func ParseInstallDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range installDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t)
		}
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t)
		}
	}
	return nil
}

func dateOnly(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
