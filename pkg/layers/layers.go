// Package layers turns filtered rows into styled GeoJSON overlays that the
// Leaflet front end draws without further logic: every feature carries its
// own colours, tooltip and popup.
package layers

import (
	"context"
	"fmt"
	"html"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/filter"
	"noise-concert-map/pkg/noiselevel"
)

// Source is the query surface shared by the in-memory snapshot and the SQL
// backends.
type Source interface {
	NoiseZones(ctx context.Context, sel filter.Selection) ([]dataset.NoiseZone, error)
	Concerts(ctx context.Context, day dataset.Day) ([]dataset.Concert, error)
	Constructions(ctx context.Context, day dataset.Day) ([]dataset.Construction, error)
	SourceTypes(ctx context.Context) ([]string, error)
}

// NoNoiseWarning is shown above the map when the noise layer is empty.
const NoNoiseWarning = "No noise data available with current filters"

// Concert styling.
const (
	ConcertColor        = "#9C27B0"
	ConcertRadiusMeters = 50
)

// Construction styling.
const (
	ConstructionFill   = "#8B4513"
	ConstructionBorder = "#654321"
)

// Layers is the JSON document returned by /api/layers.
type Layers struct {
	Selection     filter.Selection           `json:"selection"`
	Noise         *geojson.FeatureCollection `json:"noise"`
	Concerts      *geojson.FeatureCollection `json:"concerts"`
	Constructions *geojson.FeatureCollection `json:"constructions"`
	Warning       string                     `json:"warning,omitempty"`
}

// Build queries src for the selection and styles the result.
func Build(ctx context.Context, src Source, sel filter.Selection) (*Layers, error) {
	out := &Layers{
		Selection:     sel,
		Noise:         geojson.NewFeatureCollection(),
		Concerts:      geojson.NewFeatureCollection(),
		Constructions: geojson.NewFeatureCollection(),
	}

	zones, err := src.NoiseZones(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("noise zones: %w", err)
	}
	for _, z := range zones {
		if f := NoiseFeature(sel.Period, z); f != nil {
			out.Noise.Append(f)
		}
	}
	if len(out.Noise.Features) == 0 {
		out.Warning = NoNoiseWarning
	}

	if sel.ShowConcerts {
		concerts, err := src.Concerts(ctx, sel.Date)
		if err != nil {
			return nil, fmt.Errorf("concerts: %w", err)
		}
		for _, c := range concerts {
			out.Concerts.Append(ConcertFeature(c))
		}
	}

	if sel.ShowConstructions {
		projects, err := src.Constructions(ctx, sel.Date)
		if err != nil {
			return nil, fmt.Errorf("constructions: %w", err)
		}
		for _, c := range projects {
			area, marker := ConstructionFeatures(sel.Period, c)
			out.Constructions.Append(area)
			out.Constructions.Append(marker)
		}
	}
	return out, nil
}

// NoiseFeature styles one noise polygon. It returns nil when the band has no
// palette slot for the period.
func NoiseFeature(p noiselevel.Period, z dataset.NoiseZone) *geojson.Feature {
	fill, ok := noiselevel.FillColor(p, z.Level)
	if !ok {
		return nil
	}
	_, border := noiselevel.Palette(p)

	f := geojson.NewFeature(z.Geometry)
	f.Properties["kind"] = "noise"
	f.Properties["source"] = z.Source
	f.Properties["level"] = int(z.Level)
	f.Properties["fillColor"] = fill
	f.Properties["color"] = border
	f.Properties["weight"] = 1.5
	f.Properties["fillOpacity"] = 0.5
	f.Properties["tooltip"] = fmt.Sprintf("Source: %s<br>Level: %s",
		html.EscapeString(z.Source), noiselevel.Label(z.Level))
	return f
}

// ConcertFeature is a purple music marker with a 50 m halo.
func ConcertFeature(c dataset.Concert) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{c.Lon, c.Lat})
	f.Properties["kind"] = "concert"
	f.Properties["icon"] = "music"
	f.Properties["markerColor"] = "purple"
	f.Properties["popup"] = fmt.Sprintf("<b>%s</b><br>%s<br>%s",
		html.EscapeString(c.Artist), html.EscapeString(c.Venue), c.Date)
	f.Properties["circle"] = map[string]any{
		"radius":      ConcertRadiusMeters,
		"color":       ConcertColor,
		"fillColor":   ConcertColor,
		"fillOpacity": 0.2,
		"weight":      2,
	}
	return f
}

// ConstructionFeatures returns the project outline and its centroid marker.
func ConstructionFeatures(p noiselevel.Period, c dataset.Construction) (area, marker *geojson.Feature) {
	name := html.EscapeString(c.Project)

	area = geojson.NewFeature(c.Geometry)
	area.Properties["kind"] = "construction"
	area.Properties["fillColor"] = ConstructionFill
	area.Properties["color"] = ConstructionBorder
	area.Properties["weight"] = 1.5
	area.Properties["fillOpacity"] = 0.4
	area.Properties["tooltip"] = "Project: " + name

	markerColor := "white"
	if p == noiselevel.Night {
		markerColor = "lightgray"
	}
	marker = geojson.NewFeature(c.Center)
	marker.Properties["kind"] = "constructionMarker"
	marker.Properties["icon"] = "wrench"
	marker.Properties["iconColor"] = ConstructionBorder
	marker.Properties["markerColor"] = markerColor
	marker.Properties["popup"] = fmt.Sprintf("<b>%s</b><br>Start Date: %s", name, c.Start)
	return area, marker
}
