package data

import "embed"

//go:embed mysql/migrations/*.sql
var MySQLMigrations embed.FS

const MySQLMigrationsDir = "mysql/migrations"
