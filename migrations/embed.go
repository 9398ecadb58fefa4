// Package migrations holds the versioned postgres schema.
package migrations

import "embed"

// FS carries every migration file so binaries can migrate without the source tree.
//
//go:embed *.sql
var FS embed.FS
