package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"noise-concert-map/pkg/logger"
)

// Paths locates the three input files.
type Paths struct {
	Noise         string
	Concerts      string
	Constructions string
}

// DefaultPaths returns the file names of the cleaned exports inside dir.
// A noise_map.json next to the CSV is used when the CSV is absent.
func DefaultPaths(dir string) Paths {
	noise := filepath.Join(dir, "noise_map.csv")
	if _, err := os.Stat(noise); errors.Is(err, fs.ErrNotExist) {
		if _, err := os.Stat(filepath.Join(dir, "noise_map.json")); err == nil {
			noise = filepath.Join(dir, "noise_map.json")
		}
	}
	return Paths{
		Noise:         noise,
		Concerts:      filepath.Join(dir, "concert_plan.csv"),
		Constructions: filepath.Join(dir, "construction_plan.csv"),
	}
}

// Load reads all three files into a fresh Snapshot. The noise map is
// mandatory; the two event layers degrade to empty when their file is
// missing.
func Load(ctx context.Context, p Paths) (*Snapshot, error) {
	snap := &Snapshot{LoadedAt: time.Now()}

	noiseStats, err := loadOne(ctx, "noise", p.Noise, true, func(body []byte, logf func(string, ...any)) (int, Stats, error) {
		zones, st, err := ParseNoise(body, logf)
		snap.Noise = zones
		return len(zones), st, err
	})
	if err != nil {
		return nil, err
	}
	concertStats, err := loadOne(ctx, "concerts", p.Concerts, false, func(body []byte, logf func(string, ...any)) (int, Stats, error) {
		cs, st, err := ParseConcerts(body, logf)
		snap.Concerts = cs
		return len(cs), st, err
	})
	if err != nil {
		return nil, err
	}
	constructionStats, err := loadOne(ctx, "constructions", p.Constructions, false, func(body []byte, logf func(string, ...any)) (int, Stats, error) {
		cs, st, err := ParseConstructions(body, logf)
		snap.Constructions = cs
		return len(cs), st, err
	})
	if err != nil {
		return nil, err
	}

	snap.Stats = []Stats{noiseStats, concertStats, constructionStats}
	return snap, nil
}

type parseFunc func(body []byte, logf func(string, ...any)) (int, Stats, error)

func loadOne(ctx context.Context, name, path string, required bool, parse parseFunc) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	logger.Begin(name)
	logf := func(format string, args ...any) {
		logger.Append(name, fmt.Sprintf("[%-13s][%s] %s", name, filepath.Base(path), fmt.Sprintf(format, args...)))
	}

	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		logger.Success(name, fmt.Sprintf("%s missing, layer left empty", path))
		return Stats{Name: name, Path: path, Missing: true}, nil
	}
	if err != nil {
		err = fmt.Errorf("read %s: %w", path, err)
		logger.FlushError(name, err)
		return Stats{}, err
	}

	n, st, err := parse(body, logf)
	st.Name, st.Path = name, path
	if err != nil {
		err = fmt.Errorf("parse %s: %w", path, err)
		logger.FlushError(name, err)
		return st, err
	}
	logger.Success(name, fmt.Sprintf("%s: %d rows loaded, %d skipped", filepath.Base(path), n, st.Skipped))
	return st, nil
}
