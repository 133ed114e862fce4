// Package filter models the sidebar state of the dashboard and the row
// predicates derived from it.
package filter

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/noiselevel"
)

// DefaultSources is preselected in the source multi-select.
var DefaultSources = []string{"Road Traffic"}

// Selection is everything the sidebar controls.
type Selection struct {
	Period            noiselevel.Period  `json:"period"`
	Levels            []noiselevel.Level `json:"levels"`
	Sources           []string           `json:"sources"`
	Date              dataset.Day        `json:"date"`
	ShowConcerts      bool               `json:"showConcerts"`
	ShowConstructions bool               `json:"showConstructions"`
}

// Default returns the first-load state. When available is non-nil the
// default sources are limited to those present in the data.
func Default(now time.Time, available []string) Selection {
	return Selection{
		Period:            noiselevel.Day,
		Levels:            noiselevel.DefaultLevels(noiselevel.Day),
		Sources:           defaultSources(available),
		Date:              dataset.DayOf(now),
		ShowConcerts:      true,
		ShowConstructions: true,
	}
}

func defaultSources(available []string) []string {
	if available == nil {
		return append([]string(nil), DefaultSources...)
	}
	out := []string{}
	for _, s := range DefaultSources {
		for _, a := range available {
			if a == s {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// QueryError reports an unusable query parameter. HTTP handlers answer it
// with 400.
type QueryError struct {
	Param string
	Value string
	Want  string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("bad %s %q, want %s", e.Param, e.Value, e.Want)
}

// FromQuery reads a Selection from URL parameters. Absent parameters take
// their defaults; a present but empty "level" or "source" selects nothing.
// Switching the period without naming levels resets them to that period's
// defaults, just like the sidebar does.
func FromQuery(q url.Values, now time.Time, available []string) (Selection, error) {
	sel := Default(now, available)

	if v := q.Get("period"); v != "" {
		p, err := noiselevel.ParsePeriod(v)
		if err != nil {
			return Selection{}, &QueryError{Param: "period", Value: v, Want: "day or night"}
		}
		sel.Period = p
		sel.Levels = noiselevel.DefaultLevels(p)
	}

	if raw, ok := q["level"]; ok {
		levels := []noiselevel.Level{}
		for _, item := range splitList(raw) {
			n, err := strconv.Atoi(item)
			if err != nil {
				return Selection{}, &QueryError{Param: "level", Value: item, Want: "an integer band code"}
			}
			lv := noiselevel.Level(n)
			if noiselevel.Belongs(sel.Period, lv) {
				levels = append(levels, lv)
			}
		}
		sel.Levels = normalizeLevels(levels)
	}

	if raw, ok := q["source"]; ok {
		sources := []string{}
		for _, s := range raw {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		sel.Sources = normalizeSources(sources)
	}

	if v := q.Get("date"); v != "" {
		t, err := time.Parse(dataset.DayLayout, v)
		if err != nil {
			return Selection{}, &QueryError{Param: "date", Value: v, Want: "YYYY-MM-DD"}
		}
		sel.Date = dataset.DayOf(t)
	}

	if v, ok := q["concerts"]; ok {
		sel.ShowConcerts = parseBool(v)
	}
	if v, ok := q["constructions"]; ok {
		sel.ShowConstructions = parseBool(v)
	}
	return sel, nil
}

// splitList accepts both repeated parameters and comma separated values.
func splitList(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseBool(v []string) bool {
	if len(v) == 0 {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(v[len(v)-1])) {
	case "0", "false", "off", "no":
		return false
	}
	return true
}

func normalizeLevels(in []noiselevel.Level) []noiselevel.Level {
	sort.Slice(in, func(i, j int) bool { return in[i] < in[j] })
	out := in[:0]
	for _, l := range in {
		if len(out) == 0 || l != out[len(out)-1] {
			out = append(out, l)
		}
	}
	return out
}

func normalizeSources(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for _, v := range in {
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Query encodes the selection back into URL parameters; FromQuery(Query())
// yields the same selection.
func (s Selection) Query() url.Values {
	q := url.Values{}
	q.Set("period", string(s.Period))
	levels := make([]string, len(s.Levels))
	for i, l := range s.Levels {
		levels[i] = strconv.Itoa(int(l))
	}
	q.Set("level", strings.Join(levels, ","))
	if len(s.Sources) == 0 {
		q["source"] = []string{""}
	} else {
		q["source"] = append([]string(nil), s.Sources...)
	}
	q.Set("date", string(s.Date))
	q.Set("concerts", strconv.FormatBool(s.ShowConcerts))
	q.Set("constructions", strconv.FormatBool(s.ShowConstructions))
	return q
}

// Key is a canonical cache key.
func (s Selection) Key() string { return s.Query().Encode() }

// HasLevel reports whether level is checked.
func (s Selection) HasLevel(level noiselevel.Level) bool {
	for _, l := range s.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// HasSource reports whether source is selected.
func (s Selection) HasSource(source string) bool {
	for _, v := range s.Sources {
		if v == source {
			return true
		}
	}
	return false
}

// MatchNoise keeps zones of the chosen period whose source and band are
// both selected.
func (s Selection) MatchNoise(z dataset.NoiseZone) bool {
	return z.Period == s.Period && s.HasSource(z.Source) && s.HasLevel(z.Level)
}

// MatchConcert keeps concerts on the selected day.
func MatchConcert(day dataset.Day, c dataset.Concert) bool {
	return c.Date != "" && c.Date == day
}

// MatchConstruction keeps projects that have started by the selected day.
func MatchConstruction(day dataset.Day, c dataset.Construction) bool {
	return c.Start.OnOrBefore(day)
}
