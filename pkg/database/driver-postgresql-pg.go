//go:build windows && 386

package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"noise-concert-map/pkg/dataset"
)

// pgx does not build for Win-x86, so lib/pq is registered under the same
// "pgx" name and the -db-type=pgx flag keeps working unchanged.
func init() {
	sql.Register("pgx", &pq.Driver{})
}

// lib/pq has no COPY helper we use here; ReplaceAll falls back to INSERT.
func (db *Database) replaceAllPostgreSQLCopy(context.Context, *dataset.Snapshot) error {
	return errNoCopy
}
