package dataset

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the canonical calendar-day format used everywhere: in URLs,
// in the database and in popups.
const DayLayout = "2006-01-02"

// Day is a calendar date in DayLayout. The zero value means "unknown".
// Because the layout is fixed-width, string comparison orders days.
type Day string

// DayOf drops the clock part of t in its own location.
func DayOf(t time.Time) Day { return Day(t.Format(DayLayout)) }

// dateLayouts lists the formats seen in the planning exports. Only the
// calendar part is kept.
var dateLayouts = []string{
	DayLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"2 January 2006",
	"January 2, 2006",
}

// ParseDay accepts any of the known date layouts.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DayOf(t), nil
		}
	}
	return "", fmt.Errorf("unrecognised date %q", s)
}

// OnOrBefore reports d <= other. Unknown days never match.
func (d Day) OnOrBefore(other Day) bool {
	if d == "" || other == "" {
		return false
	}
	return d <= other
}

func (d Day) String() string { return string(d) }
