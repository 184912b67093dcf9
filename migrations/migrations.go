// Package migrations embeds the goose SQL migrations so binaries and tests
// can run them without a copy of the source tree on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
