package filter

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
	"time"

	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/noiselevel"
)

var now = time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

func TestDefault(t *testing.T) {
	t.Parallel()

	sel := Default(now, nil)
	if sel.Period != noiselevel.Day || !reflect.DeepEqual(sel.Levels, []noiselevel.Level{5, 6}) {
		t.Fatalf("default = %+v", sel)
	}
	if !reflect.DeepEqual(sel.Sources, []string{"Road Traffic"}) || sel.Date != "2025-06-01" {
		t.Fatalf("default = %+v", sel)
	}
	if !sel.ShowConcerts || !sel.ShowConstructions {
		t.Fatal("toggles should default to on")
	}

	if got := Default(now, []string{"Rail"}).Sources; len(got) != 0 {
		t.Fatalf("sources not in the data must not be preselected, got %v", got)
	}
}

func TestFromQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		query   string
		check   func(Selection) bool
		wantErr bool
	}{
		{
			name:  "empty query gives defaults",
			query: "",
			check: func(s Selection) bool { return reflect.DeepEqual(s, Default(now, nil)) },
		},
		{
			name:  "night resets levels",
			query: "period=night",
			check: func(s Selection) bool {
				return s.Period == noiselevel.Night && reflect.DeepEqual(s.Levels, []noiselevel.Level{15, 16})
			},
		},
		{
			name:  "foreign levels dropped and sorted",
			query: "period=night&level=16,5&level=11&level=16",
			check: func(s Selection) bool { return reflect.DeepEqual(s.Levels, []noiselevel.Level{11, 16}) },
		},
		{
			name:  "explicit empty level selects none",
			query: "level=",
			check: func(s Selection) bool { return len(s.Levels) == 0 },
		},
		{
			name:  "sources and toggles",
			query: "source=Rail&source=Industry&concerts=0&constructions=off",
			check: func(s Selection) bool {
				return reflect.DeepEqual(s.Sources, []string{"Industry", "Rail"}) && !s.ShowConcerts && !s.ShowConstructions
			},
		},
		{
			name:  "date",
			query: "date=2024-12-31",
			check: func(s Selection) bool { return s.Date == "2024-12-31" },
		},
		{name: "bad period", query: "period=dusk", wantErr: true},
		{name: "bad date", query: "date=31-12-2024", wantErr: true},
		{name: "bad level", query: "level=loud", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, err := url.ParseQuery(tc.query)
			if err != nil {
				t.Fatal(err)
			}
			sel, err := FromQuery(q, now, nil)
			if tc.wantErr {
				var qe *QueryError
				if !errors.As(err, &qe) {
					t.Fatalf("expected a QueryError, got %v (%+v)", err, sel)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromQuery: %v", err)
			}
			if !tc.check(sel) {
				t.Fatalf("unexpected selection %+v", sel)
			}
		})
	}
}

func TestQueryRoundTrip(t *testing.T) {
	t.Parallel()

	in := Selection{
		Period:            noiselevel.Night,
		Levels:            []noiselevel.Level{12, 15},
		Sources:           []string{},
		Date:              "2025-02-03",
		ShowConcerts:      false,
		ShowConstructions: true,
	}
	out, err := FromQuery(in.Query(), now, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip: %+v != %+v", out, in)
	}
	if in.Key() != out.Key() {
		t.Fatal("keys differ")
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	sel := Default(now, nil)
	zone := dataset.NoiseZone{Period: noiselevel.Day, Source: "Road Traffic", Level: 5}
	if !sel.MatchNoise(zone) {
		t.Fatal("matching zone rejected")
	}
	for _, z := range []dataset.NoiseZone{
		{Period: noiselevel.Night, Source: "Road Traffic", Level: 5},
		{Period: noiselevel.Day, Source: "Rail", Level: 5},
		{Period: noiselevel.Day, Source: "Road Traffic", Level: 4},
	} {
		if sel.MatchNoise(z) {
			t.Fatalf("zone %+v should not match", z)
		}
	}

	if !MatchConcert("2025-06-01", dataset.Concert{Date: "2025-06-01"}) || MatchConcert("2025-06-01", dataset.Concert{Date: "2025-06-02"}) {
		t.Fatal("concert predicate")
	}
	if !MatchConstruction("2025-06-01", dataset.Construction{Start: "2025-06-01"}) ||
		!MatchConstruction("2025-06-01", dataset.Construction{Start: "2024-01-01"}) ||
		MatchConstruction("2025-06-01", dataset.Construction{Start: "2025-06-02"}) {
		t.Fatal("construction predicate")
	}
}

func TestConstructionStartingLaterThatDayIsShown(t *testing.T) {
	t.Parallel()

	start, err := dataset.ParseDay("2025-06-01 08:00:00")
	if err != nil {
		t.Fatal(err)
	}
	c := dataset.Construction{Project: "KADE", Start: start}
	if !MatchConstruction("2025-06-01", c) {
		t.Fatal("project starting during the selected day should be shown")
	}
	if MatchConstruction("2025-05-31", c) {
		t.Fatal("project shown before its start day")
	}
}
