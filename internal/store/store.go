package store

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/strata/internal/cache"
	"github.com/nerrad567/strata/internal/infrastructure/config"
	"github.com/nerrad567/strata/internal/migrate"
	"github.com/nerrad567/strata/internal/monitor"
	"github.com/nerrad567/strata/internal/pool"
)

const (
	// healthTimeout bounds the pool probe during a health check.
	healthTimeout = 2 * time.Second

	// defaultPageLimit applies when a caller passes a non-positive limit.
	defaultPageLimit = 50

	// maxPageLimit caps a single page regardless of what the caller asks for.
	maxPageLimit = 500
)

// Logger is the minimal logging interface the store requires.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Health is a point-in-time snapshot of the store and its components.
type Health struct {
	Healthy    bool                       `json:"healthy"`
	Pool       pool.Stats                 `json:"pool"`
	Cache      cache.Stats                `json:"cache"`
	Operations map[string]monitor.OpStats `json:"operations"`
}

// Store binds the pool, cache, migration engine and monitor behind one
// facade. Construct it once at process start and share the instance; it is
// safe for concurrent use.
type Store struct {
	pool    *pool.Pool
	cache   *cache.Cache
	monitor *monitor.Monitor
	logger  Logger

	migrationFS  fs.FS
	migrationDir string

	mu      sync.RWMutex
	queries map[string]Query

	// flights collapses concurrent cache misses for the same key into a
	// single engine execution.
	flights singleflight.Group

	onApplied    func(migrate.Record)
	onRolledBack func(migrate.Record)
}

// New builds a store over already-constructed components. The migrations
// filesystem and directory feed the migration engine; pass an embedded
// filesystem in production and a fstest.MapFS in tests.
func New(p *pool.Pool, c *cache.Cache, m *monitor.Monitor, migrations fs.FS, migrationsDir string) *Store {
	return &Store{
		pool:         p,
		cache:        c,
		monitor:      m,
		logger:       noopLogger{},
		migrationFS:  migrations,
		migrationDir: migrationsDir,
		queries:      make(map[string]Query),
	}
}

// Open builds the pool, cache and monitor from configuration and wraps
// them in a store. It is the composition root for production callers.
func Open(cfg *config.Config, migrations fs.FS, migrationsDir string) (*Store, error) {
	p, err := pool.New(cfg.Database, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	c := cache.New(cfg.Cache.Capacity, cfg.CacheTTL())
	m := monitor.New(cfg.SlowThreshold(), cfg.Monitor.SampleWindow, cfg.Monitor.SlowQueryLimit)

	return New(p, c, m, migrations, migrationsDir), nil
}

// SetLogger replaces the no-op default. Call before serving traffic.
func (s *Store) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
		s.pool.SetLogger(logger)
	}
}

// SetMigrationHooks installs callbacks invoked after each migration is
// applied or rolled back. Either may be nil.
func (s *Store) SetMigrationHooks(onApplied, onRolledBack func(migrate.Record)) {
	s.onApplied = onApplied
	s.onRolledBack = onRolledBack
}

// Pool exposes the underlying connection pool for diagnostics surfaces.
func (s *Store) Pool() *pool.Pool { return s.pool }

// Cache exposes the underlying query cache for diagnostics surfaces.
func (s *Store) Cache() *cache.Cache { return s.cache }

// Monitor exposes the underlying performance monitor.
func (s *Store) Monitor() *monitor.Monitor { return s.monitor }

// Query executes a registered read query, serving from the cache when a
// fresh entry exists. On a miss it acquires a pooled connection, executes
// under monitor timing, caches the decoded result and releases the
// connection on every exit path.
func (s *Store) Query(ctx context.Context, name string, params ...any) (*Result, error) {
	q, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.cachedQuery(ctx, q, q.SQL, cache.Key(name, params...), params)
}

// QueryPage executes a registered read query with LIMIT/OFFSET pagination
// appended. Non-positive limits fall back to a default page size, limits
// above the cap are clamped, and negative offsets are treated as zero.
func (s *Store) QueryPage(ctx context.Context, name string, limit, offset int, params ...any) (*Result, error) {
	q, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	pageSQL := q.SQL + " LIMIT ? OFFSET ?"
	pageParams := append(append([]any{}, params...), limit, offset)
	key := cache.Key(name, pageParams...)

	return s.cachedQuery(ctx, q, pageSQL, key, pageParams)
}

// cachedQuery is the shared read path: cache lookup, collapsed engine
// execution on miss, cache fill.
func (s *Store) cachedQuery(ctx context.Context, q Query, sqlText, key string, params []any) (*Result, error) {
	if v, ok := s.cache.Get(key); ok {
		return v.(*Result), nil
	}

	v, err, _ := s.flights.Do(key, func() (any, error) {
		// A concurrent flight may have filled the cache while this
		// caller was queued behind it.
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}

		result, err := s.execQuery(ctx, q.Name, sqlText, params)
		if err != nil {
			return nil, err
		}

		s.cache.Put(key, result, q.TTL)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// execQuery runs a read statement on a pooled connection under monitor
// timing. The connection is released before the result is returned.
func (s *Store) execQuery(ctx context.Context, name, sqlText string, params []any) (*Result, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	var result *Result
	err = s.monitor.Timed(name, func() error {
		rows, queryErr := conn.DB().QueryContext(ctx, sqlText, params...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close() //nolint:errcheck // Read-only cursor

		result, queryErr = scanRows(rows)
		return queryErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrQueryExecution, name, err)
	}
	return result, nil
}

// Exec executes a registered write query and invalidates cached entries
// for each entity the query declares. Invalidation that matches nothing
// is a no-op.
func (s *Store) Exec(ctx context.Context, name string, params ...any) (ExecResult, error) {
	q, err := s.lookup(name)
	if err != nil {
		return ExecResult{}, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return ExecResult{}, err
	}
	defer s.pool.Release(conn)

	var execResult ExecResult
	err = s.monitor.Timed(name, func() error {
		res, execErr := conn.DB().ExecContext(ctx, q.SQL, params...)
		if execErr != nil {
			return execErr
		}
		// SQLite reports both; errors here would mean a driver bug.
		execResult.RowsAffected, _ = res.RowsAffected() //nolint:errcheck
		execResult.LastInsertID, _ = res.LastInsertId() //nolint:errcheck
		return nil
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: %s: %v", ErrQueryExecution, name, err)
	}

	for _, entity := range q.Entities {
		if n := s.cache.InvalidateByName(entity); n > 0 {
			s.logger.Debug("invalidated cached entries", "entity", entity, "count", n)
		}
	}

	return execResult, nil
}

// Invalidate removes cached entries whose keys contain pattern and
// returns how many were removed. Zero matches is a no-op.
func (s *Store) Invalidate(pattern string) int {
	return s.cache.Invalidate(pattern)
}

// Migrate applies pending migrations up to target, or all of them when
// target is migrate.Latest. The cache is cleared after any migration
// applies, since cached results may describe the old schema.
func (s *Store) Migrate(ctx context.Context, target int) (int, error) {
	var applied int
	err := s.withEngine(ctx, func(e *migrate.Engine) error {
		var migrateErr error
		applied, migrateErr = e.Migrate(ctx, target)
		return migrateErr
	})
	if applied > 0 {
		s.cache.Clear()
	}
	return applied, err
}

// Rollback reverts applied migrations down to target, newest first. The
// cache is cleared after any migration reverts.
func (s *Store) Rollback(ctx context.Context, target int) (int, error) {
	var reverted int
	err := s.withEngine(ctx, func(e *migrate.Engine) error {
		var rollbackErr error
		reverted, rollbackErr = e.Rollback(ctx, target)
		return rollbackErr
	})
	if reverted > 0 {
		s.cache.Clear()
	}
	return reverted, err
}

// MigrationStatus reports the current and latest schema versions plus the
// applied history.
func (s *Store) MigrationStatus(ctx context.Context) (*migrate.Status, error) {
	var status *migrate.Status
	err := s.withEngine(ctx, func(e *migrate.Engine) error {
		var statusErr error
		status, statusErr = e.Status(ctx)
		return statusErr
	})
	return status, err
}

// VerifyMigrations cross-checks applied migration checksums against the
// current script contents.
func (s *Store) VerifyMigrations(ctx context.Context) (*migrate.VerifyResult, error) {
	var result *migrate.VerifyResult
	err := s.withEngine(ctx, func(e *migrate.Engine) error {
		var verifyErr error
		result, verifyErr = e.Verify(ctx)
		return verifyErr
	})
	return result, err
}

// withEngine runs fn against a migration engine bound to a dedicated
// pooled connection. Migration runs are expected during maintenance, not
// under concurrent traffic, so borrowing one connection is sufficient.
func (s *Store) withEngine(ctx context.Context, fn func(*migrate.Engine) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	e := migrate.New(conn.DB(), s.migrationFS, s.migrationDir)
	e.SetLogger(s.logger)
	if s.onApplied != nil {
		e.SetOnApplied(s.onApplied)
	}
	if s.onRolledBack != nil {
		e.SetOnRolledBack(s.onRolledBack)
	}
	return fn(e)
}

// Health probes the pool with a bounded acquire and snapshots component
// statistics. A failed probe marks the store unhealthy but still returns
// whatever statistics are available.
func (s *Store) Health(ctx context.Context) Health {
	h := Health{
		Pool:       s.pool.Stats(),
		Cache:      s.cache.Stats(),
		Operations: s.monitor.AllStats(),
	}

	conn, err := s.pool.AcquireTimeout(ctx, healthTimeout)
	if err != nil {
		s.logger.Warn("health probe failed", "error", err)
		return h
	}
	s.pool.Release(conn)

	h.Healthy = true
	h.Pool = s.pool.Stats()
	return h
}

// Close drains the pool, waiting up to drainTimeout for checked-out
// connections to come back.
func (s *Store) Close(drainTimeout time.Duration) error {
	return s.pool.Shutdown(drainTimeout)
}
