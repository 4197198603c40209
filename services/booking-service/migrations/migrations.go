// Package migrations embeds the booking-service schema for golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Table is the schema_migrations table this service records its version in.
const Table = "booking_schema_migrations"
