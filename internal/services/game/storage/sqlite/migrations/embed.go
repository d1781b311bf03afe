package migrations

import "embed"

//go:embed rooms/*.sql
var RoomsFS embed.FS
