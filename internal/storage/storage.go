// Package storage opens the roster backend selected by configuration.
package storage

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/intervue/internal/config"
	"github.com/thebtf/intervue/internal/db/filekv"
	gormdb "github.com/thebtf/intervue/internal/db/gorm"
	"github.com/thebtf/intervue/internal/roster"
)

// Backend is an opened roster backend. Files is set for the file driver and
// State for the SQL drivers, so callers can reach driver-specific features.
type Backend struct {
	roster.Backend
	Files  *filekv.Store
	State  *gormdb.StateStore
	db     *gormdb.Store
	Driver string
}

// Open creates the backend for cfg.StorageDriver.
func Open(cfg *config.Config) (*Backend, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory roster, candidates are lost on exit")
		return &Backend{Backend: roster.NewMemoryBackend(), Driver: cfg.StorageDriver}, nil

	case config.DriverFile:
		fs, err := filekv.New(config.StatePath())
		if err != nil {
			return nil, fmt.Errorf("open state dir: %w", err)
		}
		return &Backend{Backend: fs, Files: fs, Driver: cfg.StorageDriver}, nil

	case config.DriverPostgres, config.DriverSQLite:
		dbCfg := gormdb.Config{
			Dialect:  gormdb.DialectSQLite,
			Path:     config.DBPath(),
			MaxConns: cfg.MaxConns,
			LogLevel: gormLogLevel(cfg.LogLevel),
		}
		if cfg.StorageDriver == config.DriverPostgres {
			if cfg.PostgresDSN == "" {
				return nil, fmt.Errorf("postgres driver requires INTERVUE_POSTGRES_DSN")
			}
			dbCfg.Dialect = gormdb.DialectPostgres
			dbCfg.DSN = cfg.PostgresDSN
		}
		db, err := gormdb.NewStore(dbCfg)
		if err != nil {
			return nil, err
		}
		state := gormdb.NewStateStore(db, gormdb.DefaultRevisionsKept)
		return &Backend{Backend: state, State: state, db: db, Driver: cfg.StorageDriver}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// Close releases the database connection, if any.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug", "trace":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}
