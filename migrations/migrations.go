// Package migrations embeds the numbered tern migrations applied at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
