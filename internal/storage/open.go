package storage

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/pkg/config"
)

// Open creates the storage selected by cfg.Driver.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (Storage, error) {
	var (
		store Storage
		err   error
	)
	switch cfg.Driver {
	case config.DriverMemory, "":
		logger.Info("Using in-memory storage")
		store = NewMemoryStorage()
	case config.DriverSQLite:
		store, err = NewSQLiteStorage(cfg.SQLitePath, logger)
	case config.DriverPostgres:
		store, err = NewPostgresStorage(cfg, logger)
	default:
		return nil, errors.Errorf("unknown db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage")
	}
	return store, nil
}
