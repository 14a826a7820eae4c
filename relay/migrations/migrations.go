// Package migrations embeds the relay's PostgreSQL schema.
package migrations

import "embed"

// FS holds the numbered up/down SQL files at its root.
//
//go:embed *.sql
var FS embed.FS
