package dataset

import "fmt"

// ParseConcerts reads the concert plan. Rows without a usable coordinate
// or date are dropped.
func ParseConcerts(body []byte, logf func(string, ...any)) ([]Concert, Stats, error) {
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
	out := make([]Concert, 0, len(rows))
	for i, row := range rows {
		lat, okLat := parseCoord(field(row, "Latitude", "latitude", "lat"))
		lon, okLon := parseCoord(field(row, "Longitude", "longitude", "lon"))
		if !okLat || !okLon {
			st.Skipped++
			logf("row %d skipped: missing coordinates", i+1)
			continue
		}
		day, err := ParseDay(field(row, "Date", "date"))
		if err != nil {
			st.Skipped++
			logf("row %d skipped: %v", i+1, err)
			continue
		}
		out = append(out, Concert{
			Artist: field(row, "Artist", "artist"),
			Venue:  field(row, "Venue", "venue"),
			Date:   day,
			Lat:    lat,
			Lon:    lon,
		})
	}
	st.Loaded = len(out)
	if st.Rows > 0 && st.Loaded == 0 {
		return nil, st, fmt.Errorf("none of %d concert rows could be used", st.Rows)
	}
	return out, st, nil
}
