//go:build !(windows && 386)

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"noise-concert-map/pkg/dataset"
)

// replaceAllPostgreSQLCopy refills the tables through pgx's native
// transaction and COPY protocol. It borrows the driver connection from the
// database/sql pool so no second pool is needed. errNoCopy is returned when
// the pool is not backed by pgx.
func (db *Database) replaceAllPostgreSQLCopy(ctx context.Context, snap *dataset.Snapshot) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}

	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errNoCopy
		}
		pg := direct.Conn()

		tx, err := pg.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin copy tx: %w", err)
		}
		defer tx.Rollback(ctx) // no-op after Commit

		if _, err := tx.Exec(ctx, "TRUNCATE noise_zones, concerts, constructions"); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}

		copies := []struct {
			table   string
			columns []string
			rows    [][]any
		}{
			{"noise_zones", []string{"seq", "period", "source", "band", "wkt"}, noiseRows(snap.Noise)},
			{"concerts", []string{"seq", "artist", "venue", "event_day", "lat", "lon"}, concertRows(snap.Concerts)},
			{"constructions", []string{"seq", "project", "start_day", "wkt", "center_lon", "center_lat"}, constructionRows(snap.Constructions)},
		}
		for _, c := range copies {
			if len(c.rows) == 0 {
				continue
			}
			n, err := tx.CopyFrom(ctx, pgx.Identifier{c.table}, c.columns, pgx.CopyFromRows(c.rows))
			if err != nil {
				return fmt.Errorf("copy %s: %w", c.table, err)
			}
			if int(n) != len(c.rows) {
				return fmt.Errorf("copy %s: wrote %d of %d rows", c.table, n, len(c.rows))
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit copy tx: %w", err)
		}
		return nil
	})
}
