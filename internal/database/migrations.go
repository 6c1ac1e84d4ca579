package database

import "embed"

// EmbeddedMigrations holds the goose SQL files for the sample store, so a
// deployed binary migrates without a migrations directory on disk.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
