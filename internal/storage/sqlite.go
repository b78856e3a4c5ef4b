package storage

import (
	"database/sql"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// NewSQLiteStorage opens (and creates) the database file at path.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening sqlite database")
	}
	// A single connection keeps writers serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("Failed to enable sqlite WAL", zap.Error(err))
	}

	s, err := newSQLStorage(db, sqliteDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Opened SQLite storage", zap.String("path", path))
	return s, nil
}
