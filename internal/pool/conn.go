package pool

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/strata/internal/infrastructure/config"
)

// Connection setup constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// openTimeout is the timeout for verifying connectivity on open.
	openTimeout = 5 * time.Second

	// livenessTimeout bounds the health probe run on release.
	livenessTimeout = 2 * time.Second
)

// Conn is a single SQLite connection handle owned by the pool while
// idle and by exactly one caller while checked out.
//
// Each Conn wraps its own *sql.DB restricted to one underlying
// connection, so pooled handles never share SQLite state.
type Conn struct {
	id       string
	db       *sql.DB
	overflow bool
	lastUsed time.Time
}

// ID returns the connection's identifier, used in logs and stats.
func (c *Conn) ID() string {
	return c.id
}

// DB returns the underlying database handle for executing statements.
func (c *Conn) DB() *sql.DB {
	return c.db
}

// Overflow reports whether this is a temporary connection opened beyond
// base capacity. Overflow connections are closed on release.
func (c *Conn) Overflow() bool {
	return c.overflow
}

// LastUsed returns the time the connection was last released.
func (c *Conn) LastUsed() time.Time {
	return c.lastUsed
}

// close releases the underlying handle.
func (c *Conn) close() error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing connection %s: %w", c.id, err)
	}
	return nil
}

// ping verifies the connection is alive with a trivial query.
func (c *Conn) ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, livenessTimeout)
	defer cancel()

	var result int
	if err := c.db.QueryRowContext(checkCtx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("%w: %w", ErrLiveness, err)
	}
	return nil
}

// openConn opens a new SQLite connection configured with the engine's
// recommended concurrency pragmas.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures WAL mode, busy timeout, page cache and temp storage
//  4. Sets appropriate file permissions (0600)
//  5. Verifies the connection with a ping
func openConn(cfg config.DatabaseConfig, overflow bool) (*Conn, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Build connection string with pragmas
	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_temp_store=MEMORY",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)

	// Add WAL mode if enabled
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	// Bound the page cache (negative value = size in KB)
	if cfg.CacheSizeKB > 0 {
		connStr += fmt.Sprintf("&_cache_size=-%d", cfg.CacheSizeKB)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One pooled Conn maps to exactly one SQLite connection; database/sql
	// must not multiplex behind our back.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c := &Conn{
		id:       "conn-" + uuid.NewString()[:8],
		db:       db,
		overflow: overflow,
		lastUsed: time.Now(),
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// Set file permissions (owner read/write only)
	// Ignore error - file might not exist yet on first run, will be set after first write
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return c, nil
}
