package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sfomuseum/go-csvdict"
	"golang.org/x/text/encoding/charmap"
)

// missingMarker is how the concert export spells an absent value. Noise
// and construction exports use "Unknown" as a real category.
const missingMarker = "Unknown"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns body as UTF-8. Exports saved from spreadsheet tools
// are sometimes Latin-1; those bytes are re-decoded instead of failing.
func decodeText(body []byte) (text []byte, latin1 bool, err error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	if utf8.Valid(body) {
		return body, false, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return nil, true, fmt.Errorf("latin-1 decode: %w", err)
	}
	return out, true, nil
}

// readRows parses a CSV body into header-keyed rows. Header names are
// trimmed so stray spaces in exports do not break column lookups.
func readRows(body []byte) ([]map[string]string, error) {
	rd, err := csvdict.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}

	var rows []map[string]string
	for {
		row, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("csv row %d: %w", len(rows)+2, err)
		}
		clean := make(map[string]string, len(row))
		for k, v := range row {
			clean[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		rows = append(rows, clean)
	}
	return rows, nil
}

// rawField returns the first non-empty value among the candidate columns.
func rawField(row map[string]string, names ...string) string {
	for _, n := range names {
		if v, ok := row[n]; ok && v != "" {
			return v
		}
	}
	return ""
}

// field is rawField with "Unknown" treated as missing.
func field(row map[string]string, names ...string) string {
	for _, n := range names {
		if v, ok := row[n]; ok && v != "" && v != missingMarker {
			return v
		}
	}
	return ""
}

// parseCoord parses a coordinate the lenient way: anything that is not a
// finite number counts as missing.
func parseCoord(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseLevel accepts "5" as well as "5.0", which is how pandas writes
// integer columns that once held a NaN.
func parseLevel(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
