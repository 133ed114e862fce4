package dataset

import (
	"time"

	"github.com/paulmach/orb"

	"noise-concert-map/pkg/noiselevel"
)

// NoiseZone is one polygon of the environmental noise map.
type NoiseZone struct {
	Period   noiselevel.Period
	Source   string // e.g. "Road Traffic", "Rail", "Industry"
	Level    noiselevel.Level
	Geometry orb.Geometry // WGS84, lon/lat order
}

// Concert is a planned event at a venue.
type Concert struct {
	Artist string
	Venue  string
	Date   Day
	Lat    float64
	Lon    float64
}

// Construction is a planned construction project. Geometry and Center are
// already reprojected to WGS84.
type Construction struct {
	Project  string
	Start    Day
	Geometry orb.Geometry
	Center   orb.Point
}

// Stats describes how one file was read.
type Stats struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Loaded  int    `json:"loaded"`
	Skipped int    `json:"skipped"`
	Missing bool   `json:"missing"`
}

// Snapshot holds one consistent generation of all three datasets.
type Snapshot struct {
	Noise         []NoiseZone
	Concerts      []Concert
	Constructions []Construction
	Stats         []Stats
	LoadedAt      time.Time
}
