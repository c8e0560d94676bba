package migrate

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// testMigrations is a known-good set of three migrations.
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_create_resumes.up.sql": &fstest.MapFile{
			Data: []byte(`CREATE TABLE resumes (id INTEGER PRIMARY KEY, title TEXT NOT NULL, owner TEXT NOT NULL);`),
		},
		"001_create_resumes.down.sql": &fstest.MapFile{
			Data: []byte(`DROP TABLE resumes;`),
		},
		"002_create_templates.up.sql": &fstest.MapFile{
			Data: []byte(`CREATE TABLE templates (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE);`),
		},
		"002_create_templates.down.sql": &fstest.MapFile{
			Data: []byte(`DROP TABLE templates;`),
		},
		"003_add_resume_status.up.sql": &fstest.MapFile{
			Data: []byte(`ALTER TABLE resumes ADD COLUMN status TEXT NOT NULL DEFAULT 'draft';`),
		},
		"003_add_resume_status.down.sql": &fstest.MapFile{
			Data: []byte(`ALTER TABLE resumes DROP COLUMN status;`),
		},
	}
}

// openTestDB opens a SQLite database in a temporary directory.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "migrate_test.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})
	return db
}

// schemaFingerprint returns a deterministic description of all user
// tables and indexes, excluding the migration history table itself.
func schemaFingerprint(t *testing.T, db *sql.DB) string {
	t.Helper()

	rows, err := db.QueryContext(context.Background(), `
		SELECT name, COALESCE(sql, '') FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND name NOT LIKE 'sqlite_%'
		  AND name != 'schema_migrations'
		ORDER BY name
	`)
	if err != nil {
		t.Fatalf("introspecting schema: %v", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var name, ddl string
		if err := rows.Scan(&name, &ddl); err != nil {
			t.Fatalf("scanning schema row: %v", err)
		}
		parts = append(parts, name+"="+ddl)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterating schema rows: %v", err)
	}
	return strings.Join(parts, ";")
}

func TestMigrate_AppliesAllInOrder(t *testing.T) {
	db := openTestDB(t)
	e := New(db, testMigrations(), ".")
	ctx := context.Background()

	count, err := e.Migrate(ctx, Latest)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Migrate() applied %d, want 3", count)
	}

	status, err := e.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.CurrentVersion != 3 {
		t.Errorf("CurrentVersion = %d, want 3", status.CurrentVersion)
	}
	if status.LatestVersion != 3 {
		t.Errorf("LatestVersion = %d, want 3", status.LatestVersion)
	}
	if status.Pending != 0 {
		t.Errorf("Pending = %d, want 0", status.Pending)
	}
	if len(status.History) != 3 {
		t.Fatalf("History has %d records, want 3", len(status.History))
	}

	// History carries name, checksum and timing for each version.
	first := status.History[0]
	if first.Name != "create_resumes" {
		t.Errorf("History[0].Name = %q, want create_resumes", first.Name)
	}
	if first.Checksum == "" {
		t.Error("History[0].Checksum is empty")
	}
	if first.AppliedAt.IsZero() {
		t.Error("History[0].AppliedAt is zero")
	}

	// The schema actually changed.
	var n int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('resumes','templates')",
	).Scan(&n); err != nil {
		t.Fatalf("checking tables: %v", err)
	}
	if n != 2 {
		t.Errorf("found %d tables, want 2", n)
	}
}

func TestMigrate_TargetVersion(t *testing.T) {
	db := openTestDB(t)
	e := New(db, testMigrations(), ".")
	ctx := context.Background()

	count, err := e.Migrate(ctx, 2)
	if err != nil {
		t.Fatalf("Migrate(2) error = %v", err)
	}
	if count != 2 {
		t.Errorf("Migrate(2) applied %d, want 2", count)
	}

	status, _ := e.Status(ctx)
	if status.CurrentVersion != 2 {
		t.Errorf("CurrentVersion = %d, want 2", status.CurrentVersion)
	}
	if status.Pending != 1 {
		t.Errorf("Pending = %d, want 1", status.Pending)
	}
}

func TestMigrate_BadTarget(t *testing.T) {
	db := openTestDB(t)
	e := New(db, testMigrations(), ".")

	_, err := e.Migrate(context.Background(), 99)
	if !errors.Is(err, ErrBadTarget) {
		t.Errorf("Migrate(99) error = %v, want ErrBadTarget", err)
	}
}

func TestMigrate_SecondRunIsNoop(t *testing.T) {
	db := openTestDB(t)
	e := New(db, testMigrations(), ".")
	ctx := context.Background()

	if _, err := e.Migrate(ctx, Latest); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	count, err := e.Migrate(ctx, Latest)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if count != 0 {
		t.Errorf("second Migrate() applied %d, want 0", count)
	}
}

func TestMigrate_StepwiseEqualsBatch(t *testing.T) {
	ctx := context.Background()

	stepDB := openTestDB(t)
	stepEngine := New(stepDB, testMigrations(), ".")
	for v := 1; v <= 3; v++ {
		if _, err := stepEngine.Migrate(ctx, v); err != nil {
			t.Fatalf("Migrate(%d) error = %v", v, err)
		}
	}

	batchDB := openTestDB(t)
	batchEngine := New(batchDB, testMigrations(), ".")
	if _, err := batchEngine.Migrate(ctx, Latest); err != nil {
		t.Fatalf("batch Migrate() error = %v", err)
	}

	stepSchema := schemaFingerprint(t, stepDB)
	batchSchema := schemaFingerprint(t, batchDB)
	if stepSchema != batchSchema {
		t.Errorf("stepwise schema differs from batch schema:\nstep:  %s\nbatch: %s", stepSchema, batchSchema)
	}
}

func TestMigrate_FailureIsAtomicAndHalts(t *testing.T) {
	fsys := testMigrations()
	fsys["002_create_templates.up.sql"] = &fstest.MapFile{
		Data: []byte(`CREATE TABLE templates (id INTEGER PRIMARY KEY); INSERT INTO nonexistent VALUES (1);`),
	}

	db := openTestDB(t)
	e := New(db, fsys, ".")
	ctx := context.Background()

	before := func() string {
		if _, err := e.Migrate(ctx, 1); err != nil {
			t.Fatalf("Migrate(1) error = %v", err)
		}
		return schemaFingerprint(t, db)
	}()

	count, err := e.Migrate(ctx, Latest)
	if !errors.Is(err, ErrApply) {
		t.Fatalf("Migrate() error = %v, want ErrApply", err)
	}
	if count != 0 {
		t.Errorf("Migrate() applied %d past version 1, want 0", count)
	}

	// The failed migration's transaction was rolled back: the schema is
	// unchanged and the version did not move.
	after := schemaFingerprint(t, db)
	if before != after {
		t.Errorf("schema changed across failed migration:\nbefore: %s\nafter:  %s", before, after)
	}

	status, _ := e.Status(ctx)
	if status.CurrentVersion != 1 {
		t.Errorf("CurrentVersion = %d, want 1", status.CurrentVersion)
	}

	// Migration 3 was never attempted.
	pending, err := e.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("Pending() has %d migrations, want 2", len(pending))
	}
}

func TestRollback(t *testing.T) {
	db := openTestDB(t)
	e := New(db, testMigrations(), ".")
	ctx := context.Background()

	if _, err := e.Migrate(ctx, 3); err != nil {
		t.Fatalf("Migrate(3) error = %v", err)
	}
	targetSchema := schemaFingerprint(t, db)

	count, err := e.Rollback(ctx, 1)
	if err != nil {
		t.Fatalf("Rollback(1) error = %v", err)
	}
	if count != 2 {
		t.Errorf("Rollback(1) reverted %d, want 2", count)
	}

	status, _ := e.Status(ctx)
	if status.CurrentVersion != 1 {
		t.Errorf("CurrentVersion = %d, want 1", status.CurrentVersion)
	}

	// Rolled-back tables are gone.
	var n int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='templates'",
	).Scan(&n); err != nil {
		t.Fatalf("checking tables: %v", err)
	}
	if n != 0 {
		t.Error("templates table should have been dropped by rollback")
	}

	// Re-migrating reproduces the original schema.
	if _, err := e.Migrate(ctx, 3); err != nil {
		t.Fatalf("re-Migrate(3) error = %v", err)
	}
	if got := schemaFingerprint(t, db); got != targetSchema {
		t.Errorf("schema after rollback+migrate differs:\ngot:  %s\nwant: %s", got, targetSchema)
	}
}

func TestRollback_MissingDownScript(t *testing.T) {
	fsys := testMigrations()
	delete(fsys, "003_add_resume_status.down.sql")

	db := openTestDB(t)
	e := New(db, fsys, ".")
	ctx := context.Background()

	if _, err := e.Migrate(ctx, Latest); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	_, err := e.Rollback(ctx, 1)
	if !errors.Is(err, ErrNoRollbackScript) {
		t.Errorf("Rollback() error = %v, want ErrNoRollbackScript", err)
	}
}

func TestVerify(t *testing.T) {
	t.Run("clean history", func(t *testing.T) {
		db := openTestDB(t)
		e := New(db, testMigrations(), ".")
		ctx := context.Background()

		if _, err := e.Migrate(ctx, Latest); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}

		result, err := e.Verify(ctx)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !result.IntegrityOK {
			t.Errorf("IntegrityOK = false, errors: %v", result.Errors)
		}
	})

	t.Run("tampered script", func(t *testing.T) {
		fsys := testMigrations()
		db := openTestDB(t)
		e := New(db, fsys, ".")
		ctx := context.Background()

		if _, err := e.Migrate(ctx, Latest); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}

		// Edit an applied script after the fact.
		fsys["002_create_templates.up.sql"] = &fstest.MapFile{
			Data: []byte(`CREATE TABLE templates (id INTEGER PRIMARY KEY, name TEXT, sneaky_column TEXT);`),
		}

		result, err := e.Verify(ctx)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if result.IntegrityOK {
			t.Error("IntegrityOK = true for tampered script, want false")
		}
		if len(result.Errors) != 1 {
			t.Errorf("Errors has %d entries, want 1: %v", len(result.Errors), result.Errors)
		}
	})

	t.Run("orphaned record", func(t *testing.T) {
		fsys := fstest.MapFS{
			"001_create_resumes.up.sql": &fstest.MapFile{
				Data: []byte(`CREATE TABLE resumes (id INTEGER PRIMARY KEY);`),
			},
		}
		db := openTestDB(t)
		e := New(db, fsys, ".")
		ctx := context.Background()

		if _, err := e.Migrate(ctx, Latest); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}

		// Simulate a record whose source script disappeared.
		if _, err := db.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, checksum, applied_at, duration_ms) VALUES (?, ?, ?, ?, ?)",
			2, "vanished", "deadbeef", time.Now().UTC().Format(time.RFC3339), 0,
		); err != nil {
			t.Fatalf("inserting orphan record: %v", err)
		}

		result, err := e.Verify(ctx)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if result.IntegrityOK {
			t.Error("IntegrityOK = true with orphaned record, want false")
		}
		if len(result.Orphans) != 1 || result.Orphans[0] != 2 {
			t.Errorf("Orphans = %v, want [2]", result.Orphans)
		}
	})
}

func TestLoadMigrations_VersionGap(t *testing.T) {
	fsys := fstest.MapFS{
		"001_first.up.sql": &fstest.MapFile{Data: []byte(`CREATE TABLE a (id INTEGER);`)},
		"003_third.up.sql": &fstest.MapFile{Data: []byte(`CREATE TABLE c (id INTEGER);`)},
	}

	db := openTestDB(t)
	e := New(db, fsys, ".")

	_, err := e.Migrate(context.Background(), Latest)
	if !errors.Is(err, ErrVersionGap) {
		t.Errorf("Migrate() error = %v, want ErrVersionGap", err)
	}
}

func TestPending(t *testing.T) {
	db := openTestDB(t)
	e := New(db, testMigrations(), ".")
	ctx := context.Background()

	pending, err := e.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("Pending() has %d migrations, want 3", len(pending))
	}
	for i, m := range pending {
		if m.Version != i+1 {
			t.Errorf("pending[%d].Version = %d, want %d", i, m.Version, i+1)
		}
	}

	if _, err := e.Migrate(ctx, 1); err != nil {
		t.Fatalf("Migrate(1) error = %v", err)
	}

	pending, err = e.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("Pending() has %d migrations after applying one, want 2", len(pending))
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantUp      bool
		wantOK      bool
	}{
		{name: "up script", input: "001_create_resumes.up.sql", wantVersion: 1, wantUp: true, wantOK: true},
		{name: "down script", input: "012_drop_index.down.sql", wantVersion: 12, wantUp: false, wantOK: true},
		{name: "no direction", input: "001_create.sql", wantOK: false},
		{name: "not sql", input: "001_create.up.txt", wantOK: false},
		{name: "no version", input: "create.up.sql", wantOK: false},
		{name: "zero version", input: "000_bad.up.sql", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseFilename(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("parseFilename(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %d, want %d", version, tt.wantVersion)
			}
			if isUp != tt.wantUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantUp)
			}
		})
	}
}
