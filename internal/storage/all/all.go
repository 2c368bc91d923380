// Package all wires the built-in storage backends into the storage registry.
//
// Importing it for side effects runs each backend's init, which registers
// its factory with storage.Register. The following kinds become available:
//
//   - "mssql"    (dbclone/internal/storage/mssql)
//   - "postgres" (dbclone/internal/storage/postgres)
//
// Typical usage in cmd/dbclone:
//
//	import _ "dbclone/internal/storage/all"
//
//	sc, err := cfg.StorageConfig(cfg.Source)
//	src, err := storage.Open(ctx, sc)
//
// The rest of the program depends only on storage.Endpoint.
package all

import (
	_ "dbclone/internal/storage/mssql"
	_ "dbclone/internal/storage/postgres"
)
