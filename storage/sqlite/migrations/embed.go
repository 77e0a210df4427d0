package migrations

import "embed"

// FS contains embedded SQLite migrations for workflow storage.
//
//go:embed *.sql
var FS embed.FS
