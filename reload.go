package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"noise-concert-map/pkg/database"
	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/reloadbus"
)

// reloader re-imports the data directory into the store. Calls come from
// main once and then from the watcher goroutine only, so the generation
// counter needs no guard.
type reloader struct {
	dir   string
	store database.Store
	purge func(context.Context)
	bus   *reloadbus.Bus

	generation int
}

// load reads the files, swaps the store contents and tells the browsers.
// On error the store keeps serving the previous generation.
func (rl *reloader) load(ctx context.Context) error {
	snap, err := dataset.Load(ctx, dataset.DefaultPaths(rl.dir))
	if err != nil {
		return fmt.Errorf("load %s: %w", rl.dir, err)
	}
	if err := rl.store.ReplaceAll(ctx, snap); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	rl.generation++
	if rl.purge != nil {
		rl.purge(ctx)
	}
	log.Printf("data generation %d: %d noise zones, %d concerts, %d constructions",
		rl.generation, len(snap.Noise), len(snap.Concerts), len(snap.Constructions))

	if rl.bus != nil {
		rl.bus.Publish(reloadbus.Event{Generation: rl.generation, LoadedAt: snap.LoadedAt, Stats: snap.Stats})
	}
	return nil
}

// onChange is the watcher callback.
func (rl *reloader) onChange(ctx context.Context, changed []string) {
	log.Printf("data files changed: %v", changed)
	if err := rl.load(ctx); err != nil {
		log.Printf("reload failed, keeping generation %d: %v", rl.generation, err)
		if rl.bus != nil {
			rl.bus.Publish(reloadbus.Event{Generation: rl.generation, LoadedAt: time.Now(), Error: err.Error()})
		}
	}
}
