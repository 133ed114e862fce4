package layers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/filter"
	"noise-concert-map/pkg/noiselevel"
)

// stubSource returns fixed rows and records which queries ran.
type stubSource struct {
	zones         []dataset.NoiseZone
	concerts      []dataset.Concert
	constructions []dataset.Construction
	err           error

	concertCalls      int
	constructionCalls int
}

func (s *stubSource) NoiseZones(_ context.Context, sel filter.Selection) ([]dataset.NoiseZone, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []dataset.NoiseZone
	for _, z := range s.zones {
		if sel.MatchNoise(z) {
			out = append(out, z)
		}
	}
	return out, nil
}

func (s *stubSource) Concerts(_ context.Context, day dataset.Day) ([]dataset.Concert, error) {
	s.concertCalls++
	return s.concerts, nil
}

func (s *stubSource) Constructions(_ context.Context, day dataset.Day) ([]dataset.Construction, error) {
	s.constructionCalls++
	return s.constructions, nil
}

func (s *stubSource) SourceTypes(context.Context) ([]string, error) { return nil, nil }

var square = orb.Polygon{orb.Ring{{4.90, 52.37}, {4.91, 52.37}, {4.91, 52.38}, {4.90, 52.37}}}

func TestBuildStylesNoise(t *testing.T) {
	t.Parallel()

	src := &stubSource{zones: []dataset.NoiseZone{
		{Period: noiselevel.Night, Source: "Road Traffic", Level: 16, Geometry: square},
		{Period: noiselevel.Night, Source: "<script>", Level: 15, Geometry: square},
	}}
	sel := filter.Default(time.Now(), nil)
	sel.Period = noiselevel.Night
	sel.Levels = []noiselevel.Level{15, 16}
	sel.Sources = []string{"<script>", "Road Traffic"}

	l, err := Build(context.Background(), src, sel)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Noise.Features) != 2 || l.Warning != "" {
		t.Fatalf("noise features = %d warning=%q", len(l.Noise.Features), l.Warning)
	}
	p := l.Noise.Features[0].Properties
	if p["fillColor"] != "#002B6B" || p["color"] != noiselevel.NightBorder {
		t.Fatalf("style = %v", p)
	}
	if p["tooltip"] != "Source: Road Traffic<br>Level: Extremely Loud >70dB" {
		t.Fatalf("tooltip = %q", p["tooltip"])
	}
	if tip := l.Noise.Features[1].Properties["tooltip"].(string); strings.Contains(tip, "<script>") {
		t.Fatalf("tooltip not escaped: %q", tip)
	}
}

func TestBuildWarnsWhenEmpty(t *testing.T) {
	t.Parallel()

	l, err := Build(context.Background(), &stubSource{}, filter.Default(time.Now(), nil))
	if err != nil {
		t.Fatal(err)
	}
	if l.Warning != NoNoiseWarning {
		t.Fatalf("warning = %q", l.Warning)
	}
}

func TestBuildTogglesSkipQueries(t *testing.T) {
	t.Parallel()

	src := &stubSource{
		concerts:      []dataset.Concert{{Artist: "A", Venue: "V", Date: "2025-06-01", Lat: 52.36, Lon: 4.88}},
		constructions: []dataset.Construction{{Project: "KADE", Start: "2025-01-01", Geometry: square, Center: orb.Point{4.905, 52.375}}},
	}
	sel := filter.Default(time.Now(), nil)
	sel.ShowConcerts = false

	l, err := Build(context.Background(), src, sel)
	if err != nil {
		t.Fatal(err)
	}
	if src.concertCalls != 0 || len(l.Concerts.Features) != 0 {
		t.Fatal("concerts queried while hidden")
	}
	if src.constructionCalls != 1 || len(l.Constructions.Features) != 2 {
		t.Fatalf("construction features = %d", len(l.Constructions.Features))
	}
	marker := l.Constructions.Features[1]
	if marker.Properties["markerColor"] != "white" || marker.Properties["popup"] != "<b>KADE</b><br>Start Date: 2025-01-01" {
		t.Fatalf("marker = %v", marker.Properties)
	}
}

func TestConcertFeatureJSON(t *testing.T) {
	t.Parallel()

	f := ConcertFeature(dataset.Concert{Artist: "Band & Co", Venue: "Paradiso", Date: "2025-06-01", Lat: 52.3622, Lon: 4.8838})
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Popup  string `json:"popup"`
			Circle struct {
				Radius float64 `json:"radius"`
				Color  string  `json:"color"`
			} `json:"circle"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Geometry.Coordinates[0] != 4.8838 || decoded.Geometry.Coordinates[1] != 52.3622 {
		t.Fatalf("coordinates = %v", decoded.Geometry.Coordinates)
	}
	if decoded.Properties.Popup != "<b>Band &amp; Co</b><br>Paradiso<br>2025-06-01" {
		t.Fatalf("popup = %q", decoded.Properties.Popup)
	}
	if decoded.Properties.Circle.Radius != 50 || decoded.Properties.Circle.Color != ConcertColor {
		t.Fatalf("circle = %+v", decoded.Properties.Circle)
	}
}

func TestBuildPropagatesErrors(t *testing.T) {
	t.Parallel()

	if _, err := Build(context.Background(), &stubSource{err: errors.New("boom")}, filter.Default(time.Now(), nil)); err == nil {
		t.Fatal("expected error")
	}
}
