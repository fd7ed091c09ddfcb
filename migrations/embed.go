// Package migrations embeds the SQL schema migrations into the binary so the
// collector can create its history tables without files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
