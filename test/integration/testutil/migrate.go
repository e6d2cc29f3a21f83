//go:build integration

package testutil

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// openMigrate builds a migrator over the repo's db/migrations directory
// against the test database. The blank imports register the file source and
// postgres drivers the URL schemes resolve to.
func openMigrate(sourceURL, databaseURL string) (*migrate.Migrate, error) {
	return migrate.New(sourceURL, databaseURL)
}
