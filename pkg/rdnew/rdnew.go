// Package rdnew converts Dutch national grid coordinates (EPSG:28992,
// Rijksdriehoekstelsel "RD New") to WGS84 latitude/longitude.
//
// The conversion uses the published polynomial approximation anchored on
// the Amersfoort reference point. It stays within about a metre of the
// rigorous datum transformation anywhere inside the Netherlands, which is
// far below what a web map can show.
package rdnew

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Amersfoort reference point in both systems.
const (
	refX   = 155000.0
	refY   = 463000.0
	refLat = 52.15517440
	refLon = 5.38720621
)

type term struct {
	p, q int
	c    float64
}

// Coefficients produce arc seconds.
var latTerms = []term{
	{0, 1, 3235.65389}, {2, 0, -32.58297}, {0, 2, -0.24750},
	{2, 1, -0.84978}, {0, 3, -0.06550}, {2, 2, -0.01709},
	{1, 0, -0.00738}, {4, 0, 0.00530}, {2, 3, -0.00039},
	{4, 1, 0.00033}, {1, 1, -0.00012},
}

var lonTerms = []term{
	{1, 0, 5260.52916}, {1, 1, 105.94684}, {1, 2, 2.45656},
	{3, 0, -0.81885}, {1, 3, 0.05594}, {3, 1, -0.05607},
	{0, 1, 0.01199}, {3, 2, -0.00256}, {1, 4, 0.00128},
	{0, 2, 0.00022}, {2, 0, -0.00022}, {5, 0, 0.00026},
}

func sum(terms []term, dx, dy float64) float64 {
	var s float64
	for _, t := range terms {
		s += t.c * math.Pow(dx, float64(t.p)) * math.Pow(dy, float64(t.q))
	}
	return s
}

// ToWGS84 converts RD New easting/northing in metres to degrees.
func ToWGS84(x, y float64) (lat, lon float64) {
	dx := (x - refX) * 1e-5
	dy := (y - refY) * 1e-5
	lat = refLat + sum(latTerms, dx, dy)/3600
	lon = refLon + sum(lonTerms, dx, dy)/3600
	return lat, lon
}

// Point converts a single RD point into an orb point in lon/lat order.
func Point(p orb.Point) orb.Point {
	lat, lon := ToWGS84(p.X(), p.Y())
	return orb.Point{lon, lat}
}

// Geometry reprojects every vertex of g. The input is modified in place and
// returned for convenience, matching orb/project semantics.
func Geometry(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(g, Point)
}

// Plausible reports whether x/y fall inside the RD New validity window.
// Rows outside it are almost always lon/lat values in the wrong column.
func Plausible(x, y float64) bool {
	return x > -7000 && x < 300000 && y > 289000 && y < 629000
}
