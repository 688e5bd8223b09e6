// Package migrations embeds the SQL schema applied by cmd/migrate and the API on boot.
package migrations

import "embed"

// FS holds the versioned up/down migration files.
//
//go:embed *.sql
var FS embed.FS
