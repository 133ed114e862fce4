package watcher

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestRelevant(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"/data/noise_map.csv":     true,
		"/data/noise_map.JSON":    true,
		"concert_plan.csv":        true,
		"/data/.concert_plan.csv": false,
		"/data/noise_map.csv~":    false,
		"/data/readme.txt":        false,
		"/data/construction_plan": false,
	}
	for name, want := range cases {
		if got := Relevant(name); got != want {
			t.Fatalf("Relevant(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWatcherDebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	calls := make(chan []string, 4)
	w, err := New(dir, 100*time.Millisecond, func(_ context.Context, changed []string) {
		calls <- changed
	})
	if err != nil {
		t.Fatal(err)
	}
	w.logf = t.Logf

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		for _, name := range []string{"noise_map.csv", "concert_plan.csv", "notes.txt"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte{byte(i)}, 0o644); err != nil {
				t.Fatal(err)
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case changed := <-calls:
		if !reflect.DeepEqual(changed, []string{"concert_plan.csv", "noise_map.csv"}) {
			t.Fatalf("changed = %v", changed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload callback")
	}

	select {
	case extra := <-calls:
		t.Fatalf("burst produced a second callback: %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewRejectsMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := New(filepath.Join(t.TempDir(), "missing"), 0, func(context.Context, []string) {}); err == nil {
		t.Fatal("expected error")
	}
}
