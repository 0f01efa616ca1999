// Package repository selects the tag store implementation for a deployment.
package repository

import (
	"fmt"

	"github.com/wadjakorntonsri/nfc-links/pkg/adapters/repository/postgres"
	"github.com/wadjakorntonsri/nfc-links/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/nfc-links/pkg/config"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
)

// Store is everything the server and CLI need from persistence.
type Store interface {
	ports.TagRepository
	ports.MembershipRepository
	ports.TagProvisioner
	Close() error
}

var (
	_ Store = (*sqlite.SQLiteRepository)(nil)
	_ Store = (*postgres.PostgresRepository)(nil)
)

// Open connects to the database named by cfg.DatabaseURL using
// cfg.DatabaseDriver.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.DatabaseDriver {
	case "sqlite", "libsql":
		return sqlite.NewSQLiteRepository(cfg.DatabaseURL, cfg.AutoMigrate)
	case "pgx", "postgres":
		return postgres.Open(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.AutoMigrate)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
}
