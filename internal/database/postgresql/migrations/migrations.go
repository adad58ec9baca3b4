// Package migrations embeds the goose SQL migrations for the system of
// record.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
