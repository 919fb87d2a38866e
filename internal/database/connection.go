package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/clinical-risk-fusion/internal/domain"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps the sql.DB holding the knowledge base tables
type DB struct {
	SQL    *sql.DB
	Driver string
	log    *logrus.Logger
}

// Open creates a connection pool for the configured driver and pings it
func Open(ctx context.Context, config domain.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	driverName, err := sqlDriverName(config.Driver)
	if err != nil {
		return nil, err
	}
	if config.DSN == "" {
		return nil, domain.NewConfigurationError("database.dsn is required when the knowledge source is the database")
	}

	db, err := sql.Open(driverName, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", config.Driver, err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"driver":         config.Driver,
		"max_open_conns": config.MaxOpenConns,
	}).Info("Database connection established")

	return &DB{
		SQL:    db,
		Driver: config.Driver,
		log:    logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.SQL != nil {
		db.SQL.Close()
		db.log.Info("Database connection closed")
	}
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite", nil
	case DriverPostgres:
		return "pgx", nil
	default:
		return "", domain.NewConfigurationError(fmt.Sprintf("unsupported database driver %q", driver))
	}
}
