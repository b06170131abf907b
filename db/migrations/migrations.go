// Package migrations embeds the schema applied by `stocktake migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
