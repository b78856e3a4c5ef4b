package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/pkg/config"
)

func NewPostgresStorage(cfg config.DatabaseConfig, logger *zap.Logger) (*SQLStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "error opening database")
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error connecting to the database")
	}

	s, err := newSQLStorage(db, postgresDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Connected to PostgreSQL", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
	return s, nil
}
