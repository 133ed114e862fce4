package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"

	"noise-concert-map/pkg/database"
	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/layers"
	"noise-concert-map/pkg/noiselevel"
)

var square = orb.Polygon{orb.Ring{{4.9, 52.37}, {4.91, 52.37}, {4.91, 52.38}, {4.9, 52.37}}}

func fixedNow() time.Time { return time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC) }

func newTestHandler(t *testing.T, cache Cache) (*Handler, *http.ServeMux, *database.Memory) {
	t.Helper()
	mem := database.NewMemory()
	err := mem.ReplaceAll(context.Background(), &dataset.Snapshot{
		Noise: []dataset.NoiseZone{
			{Period: noiselevel.Day, Source: "Road Traffic", Level: 6, Geometry: square},
			{Period: noiselevel.Day, Source: "Rail", Level: 6, Geometry: square},
			{Period: noiselevel.Night, Source: "Rail", Level: 12, Geometry: square},
		},
		Concerts: []dataset.Concert{
			{Artist: "Band A", Venue: "Paradiso", Date: "2025-06-01", Lat: 52.3622, Lon: 4.8838},
		},
		Constructions: []dataset.Construction{
			{Project: "KADE", Start: "2025-05-01", Geometry: square, Center: orb.Point{4.905, 52.375}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(mem, cache, NewRateLimiter(0), fixedNow, t.Logf)
	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux, mem
}

func getJSON(t *testing.T, mux *http.ServeMux, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v\n%s", target, err, rec.Body.String())
		}
	}
	return rec
}

type layersDoc struct {
	Selection struct {
		Period string `json:"period"`
		Date   string `json:"date"`
	} `json:"selection"`
	Noise struct {
		Features []json.RawMessage `json:"features"`
	} `json:"noise"`
	Concerts struct {
		Features []json.RawMessage `json:"features"`
	} `json:"concerts"`
	Constructions struct {
		Features []json.RawMessage `json:"features"`
	} `json:"constructions"`
	Warning string `json:"warning"`
}

func TestLayersEndpoint(t *testing.T) {
	_, mux, _ := newTestHandler(t, nil)

	cases := []struct {
		name          string
		target        string
		noise         int
		concerts      int
		constructions int
		warning       string
	}{
		{name: "defaults", target: "/api/layers", noise: 1, concerts: 1, constructions: 2},
		{name: "two sources", target: "/api/layers?source=Rail&source=Road+Traffic", noise: 2, concerts: 1, constructions: 2},
		{name: "night", target: "/api/layers?period=night&level=12&source=Rail", noise: 1, concerts: 1, constructions: 2},
		{name: "nothing selected", target: "/api/layers?source=&concerts=0&constructions=0", warning: layers.NoNoiseWarning},
		{name: "other day", target: "/api/layers?date=2025-04-01", noise: 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var doc layersDoc
			rec := getJSON(t, mux, tc.target, &doc)
			if rec.Code != http.StatusOK {
				t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
			}
			if len(doc.Noise.Features) != tc.noise || len(doc.Concerts.Features) != tc.concerts || len(doc.Constructions.Features) != tc.constructions {
				t.Fatalf("features %d/%d/%d", len(doc.Noise.Features), len(doc.Concerts.Features), len(doc.Constructions.Features))
			}
			if doc.Warning != tc.warning {
				t.Fatalf("warning = %q", doc.Warning)
			}
		})
	}
}

func TestLayersBadQuery(t *testing.T) {
	_, mux, _ := newTestHandler(t, nil)
	for _, target := range []string{"/api/layers?period=dusk", "/api/layers?date=tomorrow", "/api/layers?level=x"} {
		rec := getJSON(t, mux, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", target, rec.Code)
		}
		if !strings.HasPrefix(rec.Body.String(), "bad ") {
			t.Fatalf("%s: body %q", target, rec.Body.String())
		}
	}
}

func TestLayersCachePurgedOnReload(t *testing.T) {
	cache := NewResponseCache(time.Hour)
	defer cache.Close()
	checkPurgeOnReload(t, cache)
}

func TestLayersRedisCachePurgedOnReload(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(context.Background(), OpenRedis(mr.Addr(), "", 0), time.Hour, "ncm")
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	checkPurgeOnReload(t, cache)
}

// checkPurgeOnReload serves a cached document, swaps the data, and expects
// the stale document until the handler purges the cache.
func checkPurgeOnReload(t *testing.T, cache Cache) {
	t.Helper()
	h, mux, mem := newTestHandler(t, cache)
	// Pin the source so the cache key does not follow the data.
	const pinned = "/api/layers?source=Road+Traffic"

	var before layersDoc
	getJSON(t, mux, pinned, &before)
	if len(before.Noise.Features) != 1 {
		t.Fatalf("noise = %d", len(before.Noise.Features))
	}

	if err := mem.ReplaceAll(context.Background(), &dataset.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	var stale layersDoc
	getJSON(t, mux, pinned, &stale)
	if len(stale.Noise.Features) != 1 {
		t.Fatal("expected the cached document before purge")
	}

	h.Purge(context.Background())
	var after layersDoc
	getJSON(t, mux, pinned, &after)
	if len(after.Noise.Features) != 0 || after.Warning != layers.NoNoiseWarning {
		t.Fatalf("after purge: %d features, warning %q", len(after.Noise.Features), after.Warning)
	}
}

func TestSourcesAndLevels(t *testing.T) {
	_, mux, _ := newTestHandler(t, nil)

	var sources struct {
		Sources  []string `json:"sources"`
		Defaults []string `json:"defaults"`
	}
	getJSON(t, mux, "/api/sources", &sources)
	if strings.Join(sources.Sources, ",") != "Rail,Road Traffic" || strings.Join(sources.Defaults, ",") != "Road Traffic" {
		t.Fatalf("sources = %+v", sources)
	}

	var night PeriodLevels
	getJSON(t, mux, "/api/levels?period=NIGHT", &night)
	if night.Period != noiselevel.Night || len(night.Levels) != 6 || night.Border != noiselevel.NightBorder {
		t.Fatalf("night = %+v", night)
	}
	if night.Levels[0].Code != 11 || night.Levels[0].Color != "#008080" || night.Levels[0].Label != "Mild <50dB" {
		t.Fatalf("first night band = %+v", night.Levels[0])
	}

	var both []PeriodLevels
	getJSON(t, mux, "/api/levels", &both)
	if len(both) != 2 || both[0].Period != noiselevel.Day {
		t.Fatalf("both = %+v", both)
	}

	if rec := getJSON(t, mux, "/api/levels?period=noon", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad period status %d", rec.Code)
	}
}

func TestOverview(t *testing.T) {
	_, mux, _ := newTestHandler(t, nil)
	var doc struct {
		Endpoints map[string]any `json:"endpoints"`
	}
	getJSON(t, mux, "/api", &doc)
	for _, name := range []string{"layers", "sources", "levels"} {
		if _, ok := doc.Endpoints[name]; !ok {
			t.Fatalf("overview lacks %s", name)
		}
	}
}
