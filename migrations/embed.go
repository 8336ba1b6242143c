// Package migrations embeds the SQL schema into the binary so LexGate can
// migrate a database without the .sql files present on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/lexgate-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// Source returns the embedded migrations for database.DB.Migrate.
func Source() database.Source {
	return database.Source{FS: migrationsFS, Dir: "."}
}
