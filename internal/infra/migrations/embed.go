package migrations

import "embed"

// FS holds the PostgreSQL schema migrations applied at startup.
//
//go:embed *.sql
var FS embed.FS
