package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/paulmach/orb/encoding/wkt"

	"noise-concert-map/pkg/dataset"
)

// importBatch caps rows per multi-row INSERT. Noise polygons carry long WKT
// strings, so a few hundred rows already make a sizeable statement.
const importBatch = 200

// errNoCopy reports that the native PostgreSQL COPY path is unavailable and
// the portable INSERT path must be used.
var errNoCopy = errors.New("copy unsupported")

// ReplaceAll swaps the contents of all three tables for snap inside one
// transaction, so readers see either the old or the new generation.
func (db *Database) ReplaceAll(ctx context.Context, snap *dataset.Snapshot) (err error) {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if db.Driver == "pgx" {
		err := db.replaceAllPostgreSQLCopy(ctx, snap)
		if !errors.Is(err, errNoCopy) {
			return err
		}
		log.Printf("PostgreSQL COPY unavailable, falling back to INSERT batches")
	}

	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("commit import tx: %w", commitErr)
		}
	}()

	for _, table := range []string{"noise_zones", "concerts", "constructions"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err = insertBatched(ctx, tx, db.Driver, "noise_zones",
		[]string{"seq", "period", "source", "band", "wkt"}, noiseRows(snap.Noise)); err != nil {
		return err
	}
	if err = insertBatched(ctx, tx, db.Driver, "concerts",
		[]string{"seq", "artist", "venue", "event_day", "lat", "lon"}, concertRows(snap.Concerts)); err != nil {
		return err
	}
	if err = insertBatched(ctx, tx, db.Driver, "constructions",
		[]string{"seq", "project", "start_day", "wkt", "center_lon", "center_lat"}, constructionRows(snap.Constructions)); err != nil {
		return err
	}

	log.Printf("Imported %d noise zones, %d concerts, %d constructions into %s",
		len(snap.Noise), len(snap.Concerts), len(snap.Constructions), db.Driver)
	return nil
}

func noiseRows(zones []dataset.NoiseZone) [][]any {
	rows := make([][]any, 0, len(zones))
	for i, z := range zones {
		rows = append(rows, []any{i, string(z.Period), z.Source, int(z.Level), wkt.MarshalString(z.Geometry)})
	}
	return rows
}

func concertRows(cs []dataset.Concert) [][]any {
	rows := make([][]any, 0, len(cs))
	for i, c := range cs {
		rows = append(rows, []any{i, c.Artist, c.Venue, string(c.Date), c.Lat, c.Lon})
	}
	return rows
}

func constructionRows(cs []dataset.Construction) [][]any {
	rows := make([][]any, 0, len(cs))
	for i, c := range cs {
		rows = append(rows, []any{i, c.Project, string(c.Start), wkt.MarshalString(c.Geometry), c.Center.X(), c.Center.Y()})
	}
	return rows
}

// insertBatched writes rows with multi-row VALUES lists of at most
// importBatch tuples each.
func insertBatched(ctx context.Context, exec sqlExecutor, driver, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += importBatch {
		end := start + importBatch
		if end > len(rows) {
			end = len(rows)
		}
		if err := insertChunk(ctx, exec, driver, table, columns, rows[start:end]); err != nil {
			return fmt.Errorf("insert %s rows %d-%d: %w", table, start, end-1, err)
		}
	}
	return nil
}

func insertChunk(ctx context.Context, exec sqlExecutor, driver, table string, columns []string, chunk [][]any) error {
	if len(chunk) == 0 {
		return nil
	}
	ph := newPlaceholderGenerator(driver)

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ","))
	args := make([]any, 0, len(chunk)*len(columns))
	for i, row := range chunk {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for j := range row {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(ph())
		}
		sb.WriteByte(')')
		args = append(args, row...)
	}
	_, err := exec.ExecContext(ctx, sb.String(), args...)
	return err
}

var _ sqlExecutor = (*sql.Tx)(nil)
