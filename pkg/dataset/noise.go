package dataset

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/tidwall/gjson"

	"noise-concert-map/pkg/noiselevel"
)

// Column names of the cleaned noise export. The raw translated JSON uses
// "source" instead of "Type".
var (
	noisePeriodCols = []string{"Day/Night period", "period", "Day_Night_period"}
	noiseSourceCols = []string{"Type", "source_type", "source"}
	noiseLevelCols  = []string{"legend"}
	noiseWKTCols    = []string{"WKT_LNG_LAT"}
)

// ParseNoise reads noise zones from a CSV body or from a JSON array of
// objects with the same keys. logf receives one line per skipped row.
func ParseNoise(body []byte, logf func(string, ...any)) ([]NoiseZone, Stats, error) {
	text, latin1, err := decodeText(body)
	if err != nil {
		return nil, Stats{}, err
	}
	if latin1 {
		logf("not valid UTF-8, decoded as latin-1")
	}

	var rows []map[string]string
	if trimmed := bytes.TrimSpace(text); len(trimmed) > 0 && trimmed[0] == '[' {
		rows, err = jsonRows(trimmed)
	} else {
		rows, err = readRows(text)
	}
	if err != nil {
		return nil, Stats{}, err
	}

	st := Stats{Rows: len(rows)}
	zones := make([]NoiseZone, 0, len(rows))
	for i, row := range rows {
		z, err := noiseFromRow(row)
		if err != nil {
			st.Skipped++
			logf("row %d skipped: %v", i+1, err)
			continue
		}
		zones = append(zones, z)
	}
	st.Loaded = len(zones)
	if st.Rows > 0 && st.Loaded == 0 {
		return nil, st, fmt.Errorf("none of %d noise rows could be used", st.Rows)
	}
	return zones, st, nil
}

func noiseFromRow(row map[string]string) (NoiseZone, error) {
	period, err := noiselevel.ParsePeriod(rawField(row, noisePeriodCols...))
	if err != nil {
		return NoiseZone{}, err
	}
	lv, ok := parseLevel(rawField(row, noiseLevelCols...))
	if !ok {
		return NoiseZone{}, fmt.Errorf("bad legend %q", rawField(row, noiseLevelCols...))
	}
	geom, err := parseWKT(rawField(row, noiseWKTCols...))
	if err != nil {
		return NoiseZone{}, err
	}
	return NoiseZone{
		Period:   period,
		Source:   rawField(row, noiseSourceCols...),
		Level:    noiselevel.Level(lv),
		Geometry: geom,
	}, nil
}

func parseWKT(s string) (orb.Geometry, error) {
	if s == "" {
		return nil, fmt.Errorf("empty geometry")
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("wkt: %w", err)
	}
	if g == nil || g.Bound().IsEmpty() && g.Dimensions() > 0 {
		return nil, fmt.Errorf("empty geometry")
	}
	return g, nil
}

// jsonRows flattens a JSON array of objects into string rows so CSV and
// JSON inputs share one row decoder.
func jsonRows(body []byte) ([]map[string]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("expected a JSON array of records")
	}
	var rows []map[string]string
	root.ForEach(func(_, rec gjson.Result) bool {
		row := make(map[string]string)
		rec.ForEach(func(k, v gjson.Result) bool {
			if v.Type != gjson.Null {
				row[strings.TrimSpace(k.String())] = strings.TrimSpace(v.String())
			}
			return true
		})
		rows = append(rows, row)
		return true
	})
	return rows, nil
}
