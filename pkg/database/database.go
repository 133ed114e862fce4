package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"

	"noise-concert-map/pkg/dataset"
	"noise-concert-map/pkg/layers"
)

// Store is what the HTTP layer needs from a backend: the query surface plus
// a way to swap in a freshly loaded generation of the data files.
type Store interface {
	layers.Source
	ReplaceAll(ctx context.Context, snap *dataset.Snapshot) error
	Close() error
}

// Database wraps a database/sql handle for one of the SQL backends.
type Database struct {
	DB     *sql.DB // The underlying SQL database connection
	Driver string  // Normalized driver name so SQL builders can stay declarative
}

// Config holds the configuration details for initializing the database.
type Config struct {
	DBType    string // memory, sqlite, genji, duckdb or pgx (PostgreSQL)
	DBPath    string // The file path to the database file (for file-based databases)
	DBConn    string // Raw DSN for pgx; wins over the discrete fields below
	DBHost    string // The host for PostgreSQL
	DBPort    int    // The port for PostgreSQL
	DBUser    string // The user for PostgreSQL
	DBPass    string // The password for PostgreSQL
	DBName    string // The name of the PostgreSQL database
	PGSSLMode string // The SSL mode for PostgreSQL
	Port      int    // The HTTP port, used in default database file names
}

// normalizeDBType trims and lowercases driver names so switch blocks do not
// miss a backend because of mixed case or stray whitespace.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// Open returns the backend named by cfg.DBType with its schema in place.
// The memory backend needs no schema and is the default.
func Open(cfg Config) (Store, error) {
	switch normalizeDBType(cfg.DBType) {
	case "", "memory":
		log.Printf("Using in-memory store")
		return NewMemory(), nil
	}
	db, err := NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

// NewDatabase opens DB and configures connection pooling.
// For SQLite/Genji/DuckDB we force single-connection mode (no concurrent DB access).
func NewDatabase(config Config) (*Database, error) {
	driverName := normalizeDBType(config.DBType)
	var dsn string

	switch driverName {
	case "sqlite", "genji":
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("noise-%d.%s", config.Port, driverName)
		}
	case "duckdb":
		// the file is created on first open
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("noise-%d.duckdb", config.Port)
		}
	case "pgx":
		if strings.TrimSpace(config.DBConn) != "" {
			dsn = config.DBConn
		} else {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %w", err)
	}

	switch driverName {
	case "sqlite", "genji":
		// One physical connection; no concurrent statements at DB layer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if driverName == "sqlite" {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneSQLiteLikeConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
			}
			cancel()
		}
	case "duckdb":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := tuneDuckDBConnection(tuneCtx, db, log.Printf); err != nil {
			log.Printf("duckdb tuning skipped: %v", err)
		}
		cancel()
	case "pgx":
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Cheap liveness probe with timeout so we don't hang at startup
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error connecting to the database: %w", err)
		}
	}

	log.Printf("Using database driver: %s with DSN: %s", driverName, redactDSN(dsn))
	return &Database{DB: db, Driver: driverName}, nil
}

// redactDSN hides the password of URL-style DSNs in logs.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	cred := dsn[scheme+3 : at]
	if colon := strings.Index(cred, ":"); colon >= 0 {
		return dsn[:scheme+3] + cred[:colon] + ":***" + dsn[at:]
	}
	return dsn
}

// Close releases the connection pool.
func (db *Database) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// tuneSQLiteLikeConnection applies WAL/synchronous/busy pragmas.
// The steps run through a small channel pipeline so the work happens outside
// the caller goroutine.
func tuneSQLiteLikeConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}
	return runPragmas(ctx, steps, func(step pragma) error {
		if step.expectRow {
			var mode string
			if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
				return fmt.Errorf("apply %s: %w", step.label, err)
			}
			logf("SQLite tuning %s -> %s", step.label, mode)
			return nil
		}
		if _, err := db.ExecContext(ctx, step.query); err != nil {
			return fmt.Errorf("apply %s: %w", step.label, err)
		}
		logf("SQLite tuning %s applied", step.label)
		return nil
	})
}

// tuneDuckDBConnection lets DuckDB use every CPU for the vectorised scans the
// noise filter runs.
func tuneDuckDBConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	steps := []string{fmt.Sprintf("PRAGMA threads=%d;", threads)}
	return runPragmas(ctx, steps, func(q string) error {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("apply %s: %w", q, err)
		}
		logf("DuckDB tuning %s applied", q)
		return nil
	})
}

// runPragmas feeds steps to a single worker and returns its first error.
func runPragmas[T any](ctx context.Context, steps []T, apply func(T) error) error {
	jobs := make(chan T)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for step := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				// drain so the producer can finish
				for range jobs {
				}
				return
			default:
			}
			if err := apply(step); err != nil {
				errs <- err
				for range jobs {
				}
				return
			}
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for _, step := range steps {
			jobs <- step
		}
	}()

	return <-errs
}

// InitSchema creates the three tables. Geometry is stored as WKT text and
// days as YYYY-MM-DD text so every engine can compare them as strings.
// seq keeps the file order so layers stack the way the source files do.
func (db *Database) InitSchema() error {
	double, text, integer := "DOUBLE", "TEXT", "INTEGER"
	if db.Driver == "pgx" {
		double = "DOUBLE PRECISION"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS noise_zones (
  seq    %[3]s,
  period %[2]s,
  source %[2]s,
  band   %[3]s,
  wkt    %[2]s
)`, double, text, integer),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS concerts (
  seq       %[3]s,
  artist    %[2]s,
  venue     %[2]s,
  event_day %[2]s,
  lat       %[1]s,
  lon       %[1]s
)`, double, text, integer),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS constructions (
  seq        %[3]s,
  project    %[2]s,
  start_day  %[2]s,
  wkt        %[2]s,
  center_lon %[1]s,
  center_lat %[1]s
)`, double, text, integer),
	}
	if db.Driver != "genji" {
		statements = append(statements,
			`CREATE INDEX IF NOT EXISTS idx_noise_period_band ON noise_zones(period, band)`,
			`CREATE INDEX IF NOT EXISTS idx_concerts_day ON concerts(event_day)`,
			`CREATE INDEX IF NOT EXISTS idx_constructions_start ON constructions(start_day)`,
		)
	}
	return execStatements(db.DB, statements)
}

// execStatements executes DDL one statement at a time so engines without
// multi-statement Exec support still boot.
func execStatements(db *sql.DB, stmts []string) error {
	for _, raw := range stmts {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// newPlaceholderGenerator yields "$1", "$2"… for PostgreSQL and "?" elsewhere.
func newPlaceholderGenerator(dbType string) func() string {
	if normalizeDBType(dbType) == "pgx" {
		counter := 0
		return func() string {
			counter++
			return fmt.Sprintf("$%d", counter)
		}
	}
	return func() string { return "?" }
}

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
