// Package appfs embeds the files shipped inside the binaries.
package appfs

import "embed"

// FS holds the SQL migrations: migrations/local for the kiosk database, migrations/remote for the portal database.
//
//go:embed migrations
var FS embed.FS
