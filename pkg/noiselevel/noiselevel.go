// Package noiselevel holds the catalog of noise intensity bands published
// with the city noise map. Day and night use separate band codes because the
// thresholds differ by 5 dB between the two periods.
package noiselevel

import (
	"fmt"
	"strings"
)

// Period selects the day or night noise map.
type Period string

const (
	Day   Period = "day"
	Night Period = "night"
)

// ParsePeriod accepts "day" or "night" in any case.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case Day:
		return Day, nil
	case Night:
		return Night, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Level is the "legend" code of a noise polygon.
type Level int

var labels = map[Level]string{
	1: "Mild <55dB", 2: "Noisy 55-60dB", 3: "Loud 60-65dB",
	4: "Louder 65-70dB", 5: "Very Loud 70-75dB", 6: "Extremely Loud >75dB",
	11: "Mild <50dB", 12: "Noisy 50-55dB", 13: "Loud 55-60dB",
	14: "Louder 60-65dB", 15: "Very Loud 65-70dB", 16: "Extremely Loud >70dB",
}

var (
	dayLevels   = []Level{1, 2, 3, 4, 5, 6}
	nightLevels = []Level{11, 12, 13, 14, 15, 16}
)

// Palettes are ordered from the quietest band to the loudest.
var (
	DayColors   = []string{"#FFFFE0", "#FFECB3", "#FFC071", "#FF8A47", "#FF5232", "#B22222"}
	NightColors = []string{"#008080", "#006D8F", "#005B9E", "#00498D", "#00397C", "#002B6B"}
)

const (
	DayBorder   = "#FFA000"
	NightBorder = "#00796B"
)

// Levels returns the band codes of a period in ascending order.
func Levels(p Period) []Level {
	src := dayLevels
	if p == Night {
		src = nightLevels
	}
	out := make([]Level, len(src))
	copy(out, src)
	return out
}

// DefaultLevels returns the two loudest bands, which the sidebar checks on
// first load.
func DefaultLevels(p Period) []Level {
	if p == Night {
		return []Level{15, 16}
	}
	return []Level{5, 6}
}

// Belongs reports whether level is one of the bands of p.
func Belongs(p Period, level Level) bool {
	for _, l := range Levels(p) {
		if l == level {
			return true
		}
	}
	return false
}

// Label returns the human readable band name or "N/A".
func Label(level Level) string {
	if s, ok := labels[level]; ok {
		return s
	}
	return "N/A"
}

// ColorIndex maps a band onto its palette slot. Callers must skip the
// polygon when ok is false.
func ColorIndex(p Period, level Level) (idx int, ok bool) {
	if p == Night {
		idx = int(level) - 11
	} else {
		idx = int(level) - 1
	}
	return idx, idx >= 0 && idx < len(DayColors)
}

// Palette returns the fill colours and border colour for a period.
func Palette(p Period) (fills []string, border string) {
	if p == Night {
		return NightColors, NightBorder
	}
	return DayColors, DayBorder
}

// FillColor is a shortcut for Palette + ColorIndex.
func FillColor(p Period, level Level) (string, bool) {
	idx, ok := ColorIndex(p, level)
	if !ok {
		return "", false
	}
	fills, _ := Palette(p)
	return fills[idx], true
}
