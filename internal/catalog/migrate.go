package catalog

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	keepererrors "github.com/ai-trpg/keeper/internal/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration in migrations/ to the database
// behind rawDB, grounded in r3e-network-service_layer's go.mod pairing of
// golang-migrate with lib/pq for its own read-mostly relational layer.
func Migrate(rawDB *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return keepererrors.Internalf("catalog migrations: %v", err)
	}
	driver, err := postgres.WithInstance(rawDB, &postgres.Config{})
	if err != nil {
		return keepererrors.StoreUnavailablef("catalog migrations: %v", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return keepererrors.Internalf("catalog migrations: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return keepererrors.StoreUnavailablef("catalog migrations: %v", err)
	}
	return nil
}
