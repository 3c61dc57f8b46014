// Package migrations embeds the SQL schema for both storage backends.
package migrations

import "embed"

// Postgres holds the remote document store schema.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds the device record store schema.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
