package config

import (
	"os"
	"path/filepath"

	"github.com/cg-order-portal/internal/domain"
)

// DataDirEnv overrides the data directory of single-operator installs.
const DataDirEnv = "CGADMIN_DATA_DIR"

// DataDir is where the SQLite database and the filesystem archive live when
// no explicit paths are configured.
func DataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".cgadmin"
	}
	return filepath.Join(homeDir, ".cgadmin")
}

// SQLitePath returns the default SQLite database file.
func SQLitePath() string {
	return filepath.Join(DataDir(), "cgadmin.db")
}

// ArchiveRoot returns the default order form archive directory.
func ArchiveRoot() string {
	return filepath.Join(DataDir(), "orderforms")
}

// applyLiteDefaults fills in the file locations a standalone install needs.
func applyLiteDefaults(cfg *domain.Config) {
	if cfg.Database.Driver == "sqlite" && cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = SQLitePath()
	}
	if cfg.Archive.Driver == "fs" && cfg.Archive.Root == "" {
		cfg.Archive.Root = ArchiveRoot()
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = cfg.Environment
	}
}
