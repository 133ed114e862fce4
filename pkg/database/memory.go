package database

import (
	"context"
	"sync/atomic"

	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/filter"
)

// Memory serves queries straight from the latest Snapshot. Readers load the
// pointer once per call, so a concurrent ReplaceAll never tears a result.
type Memory struct {
	snap atomic.Pointer[dataset.Snapshot]
}

// NewMemory returns an empty store; queries return nothing until the first
// ReplaceAll.
func NewMemory() *Memory {
	m := &Memory{}
	m.snap.Store(&dataset.Snapshot{})
	return m
}

// ReplaceAll publishes snap as the current generation.
func (m *Memory) ReplaceAll(_ context.Context, snap *dataset.Snapshot) error {
	if snap == nil {
		snap = &dataset.Snapshot{}
	}
	m.snap.Store(snap)
	return nil
}

// Snapshot returns the current generation.
func (m *Memory) Snapshot() *dataset.Snapshot { return m.snap.Load() }

func (m *Memory) NoiseZones(ctx context.Context, sel filter.Selection) ([]dataset.NoiseZone, error) {
	var out []dataset.NoiseZone
	for _, z := range m.snap.Load().Noise {
		if sel.MatchNoise(z) {
			out = append(out, z)
		}
	}
	return out, ctx.Err()
}

func (m *Memory) Concerts(ctx context.Context, day dataset.Day) ([]dataset.Concert, error) {
	var out []dataset.Concert
	for _, c := range m.snap.Load().Concerts {
		if filter.MatchConcert(day, c) {
			out = append(out, c)
		}
	}
	return out, ctx.Err()
}

func (m *Memory) Constructions(ctx context.Context, day dataset.Day) ([]dataset.Construction, error) {
	var out []dataset.Construction
	for _, c := range m.snap.Load().Constructions {
		if filter.MatchConstruction(day, c) {
			out = append(out, c)
		}
	}
	return out, ctx.Err()
}

// SourceTypes lists the distinct noise sources in alphabetical order.
func (m *Memory) SourceTypes(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, z := range m.snap.Load().Noise {
		seen[z.Source] = struct{}{}
	}
	return sortedKeys(seen), ctx.Err()
}

func (m *Memory) Close() error { return nil }
