package migrations

import "embed"

// FS contains embedded SQLite migrations for flight-time ledger storage.
//
//go:embed *.sql
var FS embed.FS
