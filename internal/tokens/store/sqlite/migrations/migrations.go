// Package migrations holds the embedded schema migrations for the sqlite
// driver.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
