// Package migrations embeds SQL migration files into the binary.
//
// This allows Strata to run migrations without needing the SQL files
// present on the filesystem - they're compiled into the executable.
// Pass FS and Dir to the store when constructing it:
//
//	st, err := store.Open(cfg, migrations.FS, migrations.Dir)
package migrations

import "embed"

// FS holds every migration script in this directory.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory within FS where the scripts live.
const Dir = "."
