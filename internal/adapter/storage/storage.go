package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/berfenger/lanremote/internal/core/port"

	"go.uber.org/zap"
)

const (
	DRIVER_FILE   = "file"
	DRIVER_SQLITE = "sqlite"

	sqliteFileName = "lanremote.db"
)

// Open returns the store selected by driver, rooted at dir.
func Open(driver string, dir string, logger *zap.Logger) (port.KeyValueStore, error) {
	switch driver {
	case DRIVER_FILE, "":
		return NewFileStore(dir, logger)
	case DRIVER_SQLITE:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return NewSQLiteStore(filepath.Join(dir, sqliteFileName), logger)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
