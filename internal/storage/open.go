package storage

import (
	"fmt"
	"strings"

	logx "trackify/pkg/logx"
)

// Open initializes the configured store.
// An empty driver falls back to "memory".
func Open(cfg Config, log logx.Logger) (KV, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	switch driver {
	case "", "memory":
		log.Debug("storage opened", logx.String("driver", "memory"))
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
