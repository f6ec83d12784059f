package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirMode  = 0o750
	fileMode = 0o600

	// openTimeout bounds the first ping after opening.
	openTimeout = 5 * time.Second
)

// DB is the relay's SQLite file. The embedded *sql.DB is limited to one
// connection: SQLite allows a single writer and the journal is write-mostly.
type DB struct {
	*sql.DB
	path string
}

// Config maps the journal section of config.yaml.
type Config struct {
	// Path to the database file. Missing parent directories are created.
	Path string

	// WALMode switches the journal to write-ahead logging.
	WALMode bool

	// BusyTimeout is how long to wait on a locked database, in seconds.
	BusyTimeout int
}

// dsn builds the go-sqlite3 connection string.
// See https://github.com/mattn/go-sqlite3#connection-string
func (c Config) dsn() string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(c.BusyTimeout*int(time.Second/time.Millisecond)))
	if c.WALMode {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}
	return "file:" + c.Path + "?" + params.Encode()
}

// Open opens (creating if needed) the database at cfg.Path, verifies it
// answers and restricts the file to its owner.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file exists after the first ping.
	if err := os.Chmod(cfg.Path, fileMode); err != nil && !os.IsNotExist(err) {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("restricting database permissions: %w", err)
	}

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// Close closes the database. Safe on a DB whose handle was never set.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
