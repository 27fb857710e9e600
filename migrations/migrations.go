// Package migrations embeds the schema files so the binary carries its
// own schema and never depends on a migrations directory being shipped
// alongside it.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
