// Package migrations embeds the schema migrations so every binary can
// apply them at startup without shipping the SQL files alongside it.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
