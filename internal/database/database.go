package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the connection pool and a database/sql handle sharing it
type DB struct {
	Pool *pgxpool.Pool
	SQL  *sql.DB
	log  *zap.Logger
}

// Options configures the pool
type Options struct {
	URL        string
	ServiceKey string
	MinConns   int
	MaxConns   int
}

// NewDatabase creates a new database connection pool.
// ServiceKey is the store credential and takes precedence over any password in the URL.
func NewDatabase(ctx context.Context, opts Options, log *zap.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	if opts.ServiceKey != "" {
		config.ConnConfig.Password = opts.ServiceKey
	}

	// Configure connection pool
	config.MinConns = int32(opts.MinConns)
	config.MaxConns = int32(opts.MaxConns)
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info("database connection pool established",
		zap.Int("min_conns", opts.MinConns),
		zap.Int("max_conns", opts.MaxConns),
	)

	return &DB{
		Pool: pool,
		SQL:  stdlib.OpenDBFromPool(pool),
		log:  log,
	}, nil
}

// Migrate applies the idempotent schema
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.log.Info("database schema applied")
	return nil
}

// Close gracefully closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.log.Info("closing database connection pool")
		if db.SQL != nil {
			_ = db.SQL.Close()
		}
		db.Pool.Close()
	}
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.Pool.Ping(ctx)
}
