package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Latest selects the newest available version as the migration target.
const Latest = 0

// Status describes where the schema stands relative to the available
// migration sources.
type Status struct {
	CurrentVersion int      `json:"current_version"`
	LatestVersion  int      `json:"latest_version"`
	Pending        int      `json:"pending"`
	History        []Record `json:"history"`
}

// VerifyResult reports integrity checks of applied migrations against
// their source scripts.
type VerifyResult struct {
	// IntegrityOK is true when every applied migration has a matching
	// source script with an unchanged checksum.
	IntegrityOK bool `json:"integrity_ok"`

	// Orphans lists applied versions that have no source script.
	Orphans []int `json:"orphans"`

	// Errors lists human-readable descriptions of each integrity
	// failure (checksum mismatches, orphans).
	Errors []string `json:"errors"`
}

// Engine applies and rolls back versioned schema migrations over a raw
// database handle.
//
// The engine is not safe for concurrent use from multiple processes;
// run migrations in a dedicated maintenance phase.
type Engine struct {
	db     *sql.DB
	fsys   fs.FS
	dir    string
	logger Logger

	onApplied    func(Record)
	onRolledBack func(Record)
}

// New creates a migration engine reading scripts from dir within fsys.
//
// Parameters:
//   - db: Raw database handle (a dedicated pool connection)
//   - fsys: Filesystem holding the migration scripts (embed.FS in
//     production, fstest.MapFS in tests)
//   - dir: Directory within fsys, "." for the root
func New(db *sql.DB, fsys fs.FS, dir string) *Engine {
	return &Engine{
		db:     db,
		fsys:   fsys,
		dir:    dir,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetOnApplied registers a callback invoked after each migration is
// committed. Used for publishing lifecycle events.
func (e *Engine) SetOnApplied(fn func(Record)) {
	e.onApplied = fn
}

// SetOnRolledBack registers a callback invoked after each rollback is
// committed.
func (e *Engine) SetOnRolledBack(fn func(Record)) {
	e.onRolledBack = fn
}

// Pending returns the migrations that have not yet been applied, in
// ascending version order.
func (e *Engine) Pending(ctx context.Context) ([]Migration, error) {
	if err := e.ensureHistoryTable(ctx); err != nil {
		return nil, err
	}

	migrations, err := loadMigrations(e.fsys, e.dir)
	if err != nil {
		return nil, err
	}

	applied, err := e.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[int]bool, len(applied))
	for _, r := range applied {
		appliedSet[r.Version] = true
	}

	var pending []Migration
	for _, m := range migrations {
		if !appliedSet[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Migrate applies pending migrations up to target, each in its own
// transaction.
//
// A target of Latest (0) applies everything. Any failure rolls back
// that migration's transaction and halts the run: migrations are never
// applied out of order and a failure never skips ahead.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - target: Highest version to apply, or Latest
//
// Returns:
//   - int: Number of migrations applied
//   - error: ErrBadTarget for an unknown version, ErrApply (wrapped,
//     with version detail) when a script fails
func (e *Engine) Migrate(ctx context.Context, target int) (int, error) {
	if err := e.ensureHistoryTable(ctx); err != nil {
		return 0, err
	}

	migrations, err := loadMigrations(e.fsys, e.dir)
	if err != nil {
		return 0, err
	}

	if target == Latest {
		target = len(migrations)
	}
	if target < 0 || target > len(migrations) {
		return 0, fmt.Errorf("%w: %d (latest is %d)", ErrBadTarget, target, len(migrations))
	}

	applied, err := e.appliedRecords(ctx)
	if err != nil {
		return 0, err
	}
	appliedSet := make(map[int]bool, len(applied))
	for _, r := range applied {
		appliedSet[r.Version] = true
	}

	count := 0
	for _, m := range migrations {
		if m.Version > target {
			break
		}
		if appliedSet[m.Version] {
			continue
		}

		record, err := e.apply(ctx, m)
		if err != nil {
			return count, fmt.Errorf("%w: version %d (%s): %w", ErrApply, m.Version, m.Name, err)
		}

		e.logger.Info("migration applied",
			"version", m.Version,
			"name", m.Name,
			"duration_ms", record.DurationMS,
		)
		if e.onApplied != nil {
			e.onApplied(record)
		}
		count++
	}

	return count, nil
}

// Rollback reverts applied migrations down to (but not including)
// target, in strictly descending version order, each in its own
// transaction.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - target: Version to end up at (0 rolls everything back)
//
// Returns:
//   - int: Number of migrations rolled back
//   - error: ErrNoRollbackScript if a migration in range has no down
//     script, ErrRollback (wrapped) when a script fails
func (e *Engine) Rollback(ctx context.Context, target int) (int, error) {
	if err := e.ensureHistoryTable(ctx); err != nil {
		return 0, err
	}

	migrations, err := loadMigrations(e.fsys, e.dir)
	if err != nil {
		return 0, err
	}
	if target < 0 || target > len(migrations) {
		return 0, fmt.Errorf("%w: %d (latest is %d)", ErrBadTarget, target, len(migrations))
	}

	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	applied, err := e.appliedRecords(ctx)
	if err != nil {
		return 0, err
	}

	// Walk the history newest-first.
	count := 0
	for i := len(applied) - 1; i >= 0; i-- {
		record := applied[i]
		if record.Version <= target {
			break
		}

		m, ok := byVersion[record.Version]
		if !ok {
			return count, fmt.Errorf("%w: version %d not found in sources", ErrRollback, record.Version)
		}
		if m.DownSQL == "" {
			return count, fmt.Errorf("%w: version %d (%s)", ErrNoRollbackScript, m.Version, m.Name)
		}

		if err := e.revert(ctx, m); err != nil {
			return count, fmt.Errorf("%w: version %d (%s): %w", ErrRollback, m.Version, m.Name, err)
		}

		e.logger.Info("migration rolled back", "version", m.Version, "name", m.Name)
		if e.onRolledBack != nil {
			e.onRolledBack(record)
		}
		count++
	}

	return count, nil
}

// Status returns the current schema position and full application history.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	if err := e.ensureHistoryTable(ctx); err != nil {
		return nil, err
	}

	migrations, err := loadMigrations(e.fsys, e.dir)
	if err != nil {
		return nil, err
	}

	applied, err := e.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}

	s := &Status{
		LatestVersion: len(migrations),
		History:       applied,
	}
	if len(applied) > 0 {
		s.CurrentVersion = applied[len(applied)-1].Version
	}
	s.Pending = len(migrations) - len(applied)
	if s.Pending < 0 {
		s.Pending = 0
	}
	return s, nil
}

// Verify cross-checks the checksum of each applied migration against
// its source script.
//
// A mismatch means the script was edited after it was applied - an
// integrity failure the engine will not repair. Applied versions with
// no source script at all are reported as orphans.
func (e *Engine) Verify(ctx context.Context) (*VerifyResult, error) {
	if err := e.ensureHistoryTable(ctx); err != nil {
		return nil, err
	}

	migrations, err := loadMigrations(e.fsys, e.dir)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	applied, err := e.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{IntegrityOK: true}
	for _, record := range applied {
		m, ok := byVersion[record.Version]
		if !ok {
			result.IntegrityOK = false
			result.Orphans = append(result.Orphans, record.Version)
			result.Errors = append(result.Errors,
				fmt.Sprintf("version %d (%s) applied but has no source script", record.Version, record.Name))
			continue
		}
		if m.Checksum != record.Checksum {
			result.IntegrityOK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("version %d (%s): %v", record.Version, record.Name, ErrChecksumMismatch))
		}
	}

	return result, nil
}

// apply runs a single forward migration within a transaction and
// records it in the history table.
func (e *Engine) apply(ctx context.Context, m Migration) (Record, error) {
	start := time.Now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return Record{}, fmt.Errorf("executing up SQL: %w", err)
	}

	record := Record{
		Version:    m.Version,
		Name:       m.Name,
		Checksum:   m.Checksum,
		AppliedAt:  time.Now().UTC(),
		DurationMS: time.Since(start).Milliseconds(),
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, checksum, applied_at, duration_ms) VALUES (?, ?, ?, ?, ?)",
		record.Version,
		record.Name,
		record.Checksum,
		record.AppliedAt.Format(time.RFC3339),
		record.DurationMS,
	); err != nil {
		return Record{}, fmt.Errorf("recording migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("committing migration: %w", err)
	}
	return record, nil
}

// revert runs a single down script within a transaction and removes
// the history row.
func (e *Engine) revert(ctx context.Context, m Migration) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
		return fmt.Errorf("executing down SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM schema_migrations WHERE version = ?", m.Version,
	); err != nil {
		return fmt.Errorf("removing migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rollback: %w", err)
	}
	return nil
}

// ensureHistoryTable creates the schema_migrations table if needed.
func (e *Engine) ensureHistoryTable(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

// appliedRecords returns the history ordered by ascending version.
func (e *Engine) appliedRecords(ctx context.Context) ([]Record, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT version, name, checksum, applied_at, duration_ms FROM schema_migrations ORDER BY version",
	)
	if err != nil {
		return nil, fmt.Errorf("querying migration history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var appliedAt string
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &appliedAt, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		// Parse timestamp - ignore error as format is controlled by us
		r.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // Format is controlled
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return records, nil
}
