package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/livinlefevreloca/periodic/tools/migrator"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations is the catalog schema, rooted at the migration files.
var Migrations fs.FS = mustSub(migrationFiles, "migrations")

// DB wraps sql.DB with additional context
type DB struct {
	*sql.DB
	driver string
	now    func() time.Time
	logger *slog.Logger
}

// Config holds catalog connection configuration
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

// Supported drivers. sqlite3 is mattn/go-sqlite3 (cgo), sqlite is modernc.org/sqlite.
const (
	DriverSQLite3 = "sqlite3"
	DriverSQLite  = "sqlite"
)

// DefaultBusyTimeout is how long a statement waits on a lock held by another process.
const DefaultBusyTimeout = 5 * time.Second

// Standard errors
var (
	ErrNotFound        = errors.New("db: not found")
	ErrForeignKey      = errors.New("db: foreign key violation")
	ErrInvalidInterval = errors.New("db: interval must be positive")
)

// Open opens the catalog at config.Path and brings its schema up to date.
func Open(ctx context.Context, config Config) (*DB, error) {
	if config.Driver == "" {
		config.Driver = DriverSQLite3
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = DefaultBusyTimeout
	}

	dsn, err := buildDSN(config)
	if err != nil {
		return nil, err
	}

	if !isMemory(config.Path) {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("db: create catalog directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, err
	}

	// One connection keeps pragmas and :memory: databases consistent;
	// SQLite serializes writers anyway.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := migrator.RunMigrations(ctx, sqlDB, Migrations); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: migrate catalog: %w", err)
	}

	return New(sqlDB, config.Driver), nil
}

// New wraps an already opened database. The schema is assumed to be in place.
func New(sqlDB *sql.DB, driver string) *DB {
	return &DB{
		DB:     sqlDB,
		driver: driver,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Driver returns the database driver name
func (db *DB) Driver() string {
	return db.driver
}

// SchemaVersion returns the highest applied catalog migration
func (db *DB) SchemaVersion() (int, error) {
	return migrator.GetCurrentVersion(db.DB)
}

// SetClock replaces the clock used for discovery and scan error timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

// SetLogger sets the logger used for advisory failures that are not returned to callers.
func (db *DB) SetLogger(logger *slog.Logger) {
	db.logger = logger
}

func buildDSN(config Config) (string, error) {
	if strings.TrimSpace(config.Path) == "" {
		return "", errors.New("db: catalog path must be specified")
	}
	ms := config.BusyTimeout.Milliseconds()

	switch config.Driver {
	case DriverSQLite3:
		params := fmt.Sprintf("_foreign_keys=on&_busy_timeout=%d", ms)
		if !isMemory(config.Path) {
			params += "&_journal_mode=WAL"
		}
		return config.Path + "?" + params, nil
	case DriverSQLite:
		params := fmt.Sprintf("_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", ms)
		if !isMemory(config.Path) {
			params += "&_pragma=journal_mode(WAL)"
		}
		return config.Path + "?" + params, nil
	default:
		return "", fmt.Errorf("db: unsupported driver: %s (must be %s or %s)", config.Driver, DriverSQLite3, DriverSQLite)
	}
}

func isMemory(path string) bool {
	return path == ":memory:"
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Error classification functions

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// IsForeignKey checks if error is a foreign key error
func IsForeignKey(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrForeignKey) {
		return true
	}

	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
