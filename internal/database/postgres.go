package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/config"
)

// Pools holds one connection pool per credential tier over the same database
type Pools struct {
	Public     *sql.DB
	Privileged *sql.DB
}

// NewPostgresDB opens and pings a pool authenticated as the given role
func NewPostgresDB(cfg *config.DatabaseConfig, cred config.Credentials) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN(cred))
	if err != nil {
		return nil, fmt.Errorf("open database as %s: %w", cred.User, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database as %s: %w", cred.User, err)
	}

	return db, nil
}

// Open connects both credential tiers
func Open(cfg *config.DatabaseConfig) (*Pools, error) {
	public, err := NewPostgresDB(cfg, cfg.Public)
	if err != nil {
		return nil, err
	}

	privileged, err := NewPostgresDB(cfg, cfg.Privileged)
	if err != nil {
		public.Close()
		return nil, err
	}

	return &Pools{Public: public, Privileged: privileged}, nil
}

// Close closes both pools
func (p *Pools) Close() error {
	var firstErr error
	for _, db := range []*sql.DB{p.Public, p.Privileged} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
