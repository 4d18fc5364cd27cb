package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds database configuration.
type Config struct {
	// Driver is detected from URL when empty.
	Driver Driver
	// URL is the PostgreSQL connection string, or a SQLite file URL.
	URL string
	// SQLitePath defaults to ~/.memberly/memberly.db.
	SQLitePath string
	// MaxConns applies to PostgreSQL only.
	MaxConns int
}

// Connection is an open database handle. Repositories reach the driver-specific
// handle through the concrete postgres and sqlite types.
type Connection interface {
	Ping(ctx context.Context) error
	Close() error
	Driver() Driver
}

type connector func(ctx context.Context, cfg Config) (Connection, error)

var connectors = map[Driver]connector{}

// RegisterDriver makes a driver available to NewConnection. The driver
// packages call it from init.
func RegisterDriver(d Driver, fn func(ctx context.Context, cfg Config) (Connection, error)) {
	connectors[d] = fn
}

// NewConnection opens a connection for the configured or detected driver.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDriver(cfg.URL)
	}
	if driver == DriverSQLite && cfg.SQLitePath == "" {
		cfg.SQLitePath = sqlitePathFromURL(cfg.URL)
	}

	connect, ok := connectors[driver]
	if !ok {
		return nil, fmt.Errorf("database driver %q is not registered", driver)
	}
	return connect(ctx, cfg)
}

// DefaultSQLitePath returns the local-mode database file.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".memberly", "memberly.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o750)
}

func sqlitePathFromURL(url string) string {
	if DetectDriver(url) != DriverSQLite {
		return ""
	}
	return strings.TrimPrefix(url, "sqlite://")
}
