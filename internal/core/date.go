package core

import (
	"strings"
	"time"
)

// fallbackLayouts are tried in order when the input is not a bare "day month"
// token. They cover the shapes the source adapters actually produce.
var fallbackLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"02/01/2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

// ParseStatementDate normalizes a raw date token into a Date.
//
// A "19 APR" token (day and month, no year) is parsed against now's year; if
// the result lands in the future it is rolled back one year, which handles
// statements spanning a year boundary (a December entry read in January).
// Other shapes fall back to the general layouts. Unparseable input yields the
// zero Date and ok=false; callers keep the row but must treat the date as
// unusable for aggregation.
func ParseStatementDate(raw string, now time.Time) (Date, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, false
	}

	if parts := strings.Fields(s); len(parts) == 2 {
		normalized := parts[0] + " " + capitalizeMonth(parts[1])
		dt, err := time.Parse("2 Jan 2006", normalized+" "+now.Format("2006"))
		if err != nil {
			return Date{}, false
		}
		if dt.After(now) {
			dt = dt.AddDate(-1, 0, 0)
		}
		return NewDate(dt.Year(), int(dt.Month()), dt.Day()), true
	}

	for _, layout := range fallbackLayouts {
		if dt, err := time.Parse(layout, s); err == nil {
			return NewDate(dt.Year(), int(dt.Month()), dt.Day()), true
		}
	}
	return Date{}, false
}

// capitalizeMonth turns "APR"/"apr" into "Apr" for time.Parse.
func capitalizeMonth(m string) string {
	if len(m) == 0 {
		return m
	}
	m = strings.ToLower(m)
	return strings.ToUpper(m[:1]) + m[1:]
}
