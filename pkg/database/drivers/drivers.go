// Package drivers groups database/sql driver registrations so heavy
// dependencies stay out of lightweight go test/go vet runs unless a
// binary explicitly imports this package.
//
// PostgreSQL ("pgx") is registered by the database package itself because
// its COPY import path talks to pgx directly.
package drivers

// Ready is a no-op helper used by main packages to make the import explicit.
func Ready() {}
