package localstore

import (
	"fmt"
	"path/filepath"

	"github.com/juggajay/siteproof-v2-sub005/internal/config"
	"github.com/juggajay/siteproof-v2-sub005/internal/offline"
)

// DatabaseFile is the SQLite file name inside the agent data directory.
const DatabaseFile = "siteproof.db"

// New creates the store selected by cfg.Type.
func New(cfg config.LocalStoreConfig) (offline.Store, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite store requires data_dir")
		}
		return OpenSQLite(filepath.Join(cfg.DataDir, DatabaseFile))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}
