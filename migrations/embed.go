// Package migrations bundles the SQL schema files into the binaries.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
