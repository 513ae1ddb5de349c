package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

const migrateTimeout = time.Minute

// migratePostgres opens a database/sql handle for goose and applies the
// postgres migrations.
func migratePostgres(ctx context.Context, dsn string, log *slog.Logger) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging sql connection: %w", err)
	}
	return migrate(ctx, DriverPostgres, sqlDB, log)
}

func migrate(ctx context.Context, driver string, sqlDB *sql.DB, log *slog.Logger) error {
	var dialect goose.Dialect
	switch driver {
	case DriverPostgres:
		dialect = goose.DialectPostgres
	case DriverSQLite:
		dialect = goose.DialectSQLite3
	default:
		return fmt.Errorf("no migrations for driver %q", driver)
	}

	dir, err := fs.Sub(migrationFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("locating %s migrations: %w", driver, err)
	}

	provider, err := goose.NewProvider(dialect, sqlDB, dir)
	if err != nil {
		return fmt.Errorf("configuring migrations: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	results, err := provider.Up(runCtx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	for _, res := range results {
		log.Info("applied migration",
			"driver", driver,
			"version", res.Source.Version,
			"file", res.Source.Path,
			"duration", res.Duration,
		)
	}
	return nil
}
