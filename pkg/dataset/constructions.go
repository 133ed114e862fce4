package dataset

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"noise-concert-map/pkg/rdnew"
)

// ParseConstructions reads the construction plan. Geometries arrive in
// RD New and are reprojected before the centroid is taken, so the marker
// sits at the WGS84 centroid the map actually draws. Rows whose geometry
// lies outside the RD New window are skipped.
func ParseConstructions(body []byte, logf func(string, ...any)) ([]Construction, Stats, error) {
	text, latin1, err := decodeText(body)
	if err != nil {
		return nil, Stats{}, err
	}
	if latin1 {
		logf("not valid UTF-8, decoded as latin-1")
	}
	rows, err := readRows(text)
	if err != nil {
		return nil, Stats{}, err
	}

	st := Stats{Rows: len(rows)}
	out := make([]Construction, 0, len(rows))
	for i, row := range rows {
		c, err := constructionFromRow(row)
		if err != nil {
			st.Skipped++
			logf("row %d skipped: %v", i+1, err)
			continue
		}
		out = append(out, c)
	}
	st.Loaded = len(out)
	if st.Rows > 0 && st.Loaded == 0 {
		return nil, st, fmt.Errorf("none of %d construction rows could be used", st.Rows)
	}
	return out, st, nil
}

func constructionFromRow(row map[string]string) (Construction, error) {
	geom, err := parseWKT(rawField(row, "Geometry", "geometry", "WKT"))
	if err != nil {
		return Construction{}, err
	}
	start, err := ParseDay(rawField(row, "Planned_Construction_Start", "Start"))
	if err != nil {
		return Construction{}, fmt.Errorf("start date: %w", err)
	}
	project := rawField(row, "Project_Abbreviation", "Project")

	first, ok := firstVertex(geom)
	if !ok || !rdnew.Plausible(first.X(), first.Y()) {
		return Construction{}, fmt.Errorf("project %q: geometry is not in RD New", project)
	}
	geom = rdnew.Geometry(geom)

	center, _ := planar.CentroidArea(geom)
	return Construction{
		Project:  project,
		Start:    start,
		Geometry: geom,
		Center:   center,
	}, nil
}

func firstVertex(g orb.Geometry) (orb.Point, bool) {
	switch v := g.(type) {
	case orb.Point:
		return v, true
	case orb.MultiPoint:
		if len(v) > 0 {
			return v[0], true
		}
	case orb.LineString:
		if len(v) > 0 {
			return v[0], true
		}
	case orb.Ring:
		if len(v) > 0 {
			return v[0], true
		}
	case orb.Polygon:
		if len(v) > 0 && len(v[0]) > 0 {
			return v[0][0], true
		}
	case orb.MultiPolygon:
		if len(v) > 0 && len(v[0]) > 0 && len(v[0][0]) > 0 {
			return v[0][0][0], true
		}
	case orb.MultiLineString:
		if len(v) > 0 && len(v[0]) > 0 {
			return v[0][0], true
		}
	}
	return orb.Point{}, false
}
