package store

import (
	"fmt"
	"path/filepath"

	"ttrack/internal/config"
	"ttrack/internal/timer"
)

// NewStoreFromConfig creates a SQLiteStore based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, clock timer.Clock, idgen timer.IDGenerator) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		dbPath := filepath.Join(cfg.DataDir, "ttrack.db")
		return NewSQLiteStore(dbPath, clock, idgen)
	case "memory":
		return NewSQLiteStore(":memory:", clock, idgen)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
