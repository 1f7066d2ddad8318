// Package migrations embeds the storefront schema migrations.
package migrations

import "embed"

// FS holds every *.up.sql migration.
//
//go:embed *.sql
var FS embed.FS
