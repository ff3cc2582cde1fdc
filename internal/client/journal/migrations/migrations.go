// Package migrations embeds the journal schema, applied with goose
// when the journal database is opened.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
