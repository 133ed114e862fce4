package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/filter"
	"noise-concert-map/pkg/noiselevel"
)

// NoiseZones pushes the period, band and source filters into SQL. OR chains
// are used instead of IN lists because Genji only binds scalars.
func (db *Database) NoiseZones(ctx context.Context, sel filter.Selection) ([]dataset.NoiseZone, error) {
	if len(sel.Levels) == 0 || len(sel.Sources) == 0 {
		return nil, nil
	}
	ph := newPlaceholderGenerator(db.Driver)

	var sb strings.Builder
	args := make([]any, 0, 1+len(sel.Levels)+len(sel.Sources))
	sb.WriteString("SELECT period, source, band, wkt FROM noise_zones WHERE period = ")
	sb.WriteString(ph())
	args = append(args, string(sel.Period))

	sb.WriteString(" AND (")
	for i, l := range sel.Levels {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("band = " + ph())
		args = append(args, int(l))
	}
	sb.WriteString(") AND (")
	for i, s := range sel.Sources {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("source = " + ph())
		args = append(args, s)
	}
	sb.WriteString(") ORDER BY seq")

	rows, err := db.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying noise zones: %w", err)
	}
	defer rows.Close()

	var out []dataset.NoiseZone
	for rows.Next() {
		var (
			period, source, text string
			band                 int64
		)
		if err := rows.Scan(&period, &source, &band, &text); err != nil {
			return nil, fmt.Errorf("error scanning noise zone: %w", err)
		}
		geom, err := wkt.Unmarshal(text)
		if err != nil {
			return nil, fmt.Errorf("stored geometry for %s/%d: %w", source, band, err)
		}
		out = append(out, dataset.NoiseZone{
			Period:   noiselevel.Period(period),
			Source:   source,
			Level:    noiselevel.Level(band),
			Geometry: geom,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating noise zones: %w", err)
	}
	return out, nil
}

// Concerts returns the concerts held on day.
func (db *Database) Concerts(ctx context.Context, day dataset.Day) ([]dataset.Concert, error) {
	if day == "" {
		return nil, nil
	}
	ph := newPlaceholderGenerator(db.Driver)
	query := "SELECT artist, venue, event_day, lat, lon FROM concerts WHERE event_day = " + ph() + " ORDER BY seq"

	rows, err := db.DB.QueryContext(ctx, query, string(day))
	if err != nil {
		return nil, fmt.Errorf("error querying concerts: %w", err)
	}
	defer rows.Close()

	var out []dataset.Concert
	for rows.Next() {
		var (
			c    dataset.Concert
			date string
		)
		if err := rows.Scan(&c.Artist, &c.Venue, &date, &c.Lat, &c.Lon); err != nil {
			return nil, fmt.Errorf("error scanning concert: %w", err)
		}
		c.Date = dataset.Day(date)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating concerts: %w", err)
	}
	return out, nil
}

// Constructions returns the projects whose planned start is on or before
// day. Rows without a start day never match.
func (db *Database) Constructions(ctx context.Context, day dataset.Day) ([]dataset.Construction, error) {
	if day == "" {
		return nil, nil
	}
	ph := newPlaceholderGenerator(db.Driver)
	query := "SELECT project, start_day, wkt, center_lon, center_lat FROM constructions WHERE start_day > '' AND start_day <= " + ph() + " ORDER BY seq"

	rows, err := db.DB.QueryContext(ctx, query, string(day))
	if err != nil {
		return nil, fmt.Errorf("error querying constructions: %w", err)
	}
	defer rows.Close()

	var out []dataset.Construction
	for rows.Next() {
		var (
			c           dataset.Construction
			start, text string
			lon, lat    float64
		)
		if err := rows.Scan(&c.Project, &start, &text, &lon, &lat); err != nil {
			return nil, fmt.Errorf("error scanning construction: %w", err)
		}
		geom, err := wkt.Unmarshal(text)
		if err != nil {
			return nil, fmt.Errorf("stored geometry for %s: %w", c.Project, err)
		}
		c.Start = dataset.Day(start)
		c.Geometry = geom
		c.Center = orb.Point{lon, lat}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constructions: %w", err)
	}
	return out, nil
}

// SourceTypes lists the distinct noise sources in alphabetical order.
// Deduplication happens here rather than with DISTINCT so every engine runs
// the same plain scan.
func (db *Database) SourceTypes(ctx context.Context) ([]string, error) {
	rows, err := db.DB.QueryContext(ctx, "SELECT source FROM noise_zones")
	if err != nil {
		return nil, fmt.Errorf("error querying source types: %w", err)
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("error scanning source type: %w", err)
		}
		seen[s] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source types: %w", err)
	}
	return sortedKeys(seen), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
