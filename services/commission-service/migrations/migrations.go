// Package migrations embeds the commission-service schema for golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

const Table = "commission_schema_migrations"
