package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the Postgres schema, one registered migration per file.
var Migrations = migrate.NewMigrations()
