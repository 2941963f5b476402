// Package migrations holds the schema scripts for both SQL backends and the
// runner that applies them.
package migrations

import "embed"

// FS embeds the SQLite scripts at the root and the PostgreSQL scripts
// under postgres/.
//
//go:embed *.sql postgres/*.sql
var FS embed.FS
