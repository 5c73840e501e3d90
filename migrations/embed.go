// Package migrations embeds the goose SQL migrations for the rentops schema.
package migrations

import "embed"

// FS holds every migration file. The SQL is written to run unchanged on
// SQLite and Postgres.
//
//go:embed *.sql
var FS embed.FS
