package store

import (
	"fmt"
	"os"

	"repute-go/internal/config"
	"repute-go/internal/database"
	"repute-go/internal/ledger"
)

// NewStoreFromConfig creates a ledger.Store implementation based on the database config type.
// The data directory is created if needed and a sqlite database is migrated to the latest schema on open.
func NewStoreFromConfig(cfg config.DatabaseConfig, nodeID string) (ledger.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		s, err := database.NewSQLiteStore(cfg.Path(nodeID))
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		return s, nil
	case "bolt":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for bolt database")
		}
		s, err := NewBoltStore(cfg.Path(nodeID))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
