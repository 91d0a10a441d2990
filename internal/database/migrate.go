package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/config"
)

const insertFunctionSignature = "insert_registration(TEXT, TEXT, TEXT, TEXT, TEXT, TEXT, TEXT, TEXT, TEXT, TEXT)"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations using the privileged role.
// It opens its own connection because the migrate driver closes it when done.
func Migrate(cfg *config.DatabaseConfig, logger *logrus.Logger) error {
	db, err := sql.Open("postgres", cfg.DSN(cfg.Privileged))
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := GrantPublicRole(ctx, db, cfg.Public.User); err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version":     version,
		"dirty":       dirty,
		"public_role": cfg.Public.User,
	}).Info("Database schema is up to date")

	return nil
}

// GrantPublicRole lets role call the insert function and nothing else.
// Table privileges are revoked so the public pool can never read rows back.
func GrantPublicRole(ctx context.Context, db *sql.DB, role string) error {
	if role == "" {
		return fmt.Errorf("public database role is not configured")
	}
	quoted := pq.QuoteIdentifier(role)

	statements := []string{
		"GRANT EXECUTE ON FUNCTION " + insertFunctionSignature + " TO " + quoted,
		"REVOKE ALL ON TABLE registrations FROM " + quoted,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("grant insert access to %s: %w", role, err)
		}
	}

	return nil
}
