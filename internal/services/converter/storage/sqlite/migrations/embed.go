// Package migrations embeds SQL migration scripts for the conversion store.
package migrations

import "embed"

//go:embed conversion/*.sql
var ConversionFS embed.FS
