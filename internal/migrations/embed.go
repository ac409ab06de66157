// Package migrations embeds the SQL schema migrations applied at
// startup via pkg/db.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
