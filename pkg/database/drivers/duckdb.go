//go:build cgo && duckdb && (linux || darwin || windows) && (amd64 || arm64)

// DuckDB needs CGO, so its driver is only linked with the duckdb build tag:
//
//	CGO_ENABLED=1 go build -tags duckdb
//
// Default builds stay CGO-free and simply reject -db-type=duckdb.
package drivers

import (
	_ "github.com/marcboeker/go-duckdb"
)
