// Package gorm provides GORM-based storage for the intervue roster.
package gorm

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib" // Registers the "pgx" database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // Registers the pure-Go "sqlite" database/sql driver
)

// Supported dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Store represents the GORM database connection.
type Store struct {
	DB      *gorm.DB
	sqlDB   *sql.DB
	dialect string
}

// Config holds database configuration.
type Config struct {
	Dialect  string          // sqlite (default) or postgres
	Path     string          // SQLite database file
	DSN      string          // Postgres connection string
	MaxConns int             // Maximum number of open connections (default: 4)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
}

// NewStore opens the database, runs migrations and tunes SQLite for
// concurrent readers.
func NewStore(cfg Config) (*Store, error) {
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = DialectSQLite
	}

	var (
		sqlDB     *sql.DB
		dialector gorm.Dialector
		err       error
	)
	switch dialect {
	case DialectSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite: empty database path")
		}
		// Pragmas go in the DSN so every pooled connection gets them.
		q := url.Values{}
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
		sqlDB, err = sql.Open("sqlite", "file:"+cfg.Path+"?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		dialector = sqlite.Dialector{DriverName: "sqlite", Conn: sqlDB}
	case DialectPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres: empty DSN")
		}
		sqlDB, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: true,
	})
	if err != nil {
		_ = sqlDB.Close() // Explicitly ignore close error during cleanup
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	if dialect == DialectSQLite {
		sqlDB.SetConnMaxLifetime(0) // SQLite connections are cheap to keep
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{DB: db, sqlDB: sqlDB, dialect: dialect}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}

// Dialect reports which database the store talks to.
func (s *Store) Dialect() string {
	return s.dialect
}

// GetRawDB returns the underlying *sql.DB.
func (s *Store) GetRawDB() *sql.DB {
	return s.sqlDB
}

// GetDB returns the GORM DB instance for standard queries.
func (s *Store) GetDB() *gorm.DB {
	return s.DB
}
