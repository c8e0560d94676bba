package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/nerrad567/strata/internal/cache"
	"github.com/nerrad567/strata/internal/infrastructure/config"
	"github.com/nerrad567/strata/internal/migrate"
	"github.com/nerrad567/strata/internal/monitor"
	"github.com/nerrad567/strata/internal/pool"
)

const drainTimeout = 2 * time.Second

func testSchema() fstest.MapFS {
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
	}
}

// newTestStore builds a migrated store over a temporary database with the
// standard resume queries registered.
func newTestStore(t *testing.T, baseSize, overflow, capacity int) *Store {
	t.Helper()

	dbCfg := config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "store_test.db"),
		WALMode:     true,
		BusyTimeout: 5,
		CacheSizeKB: 2000,
	}
	poolCfg := config.PoolConfig{BaseSize: baseSize, Overflow: overflow, AcquireTimeout: 1000}

	p, err := pool.New(dbCfg, poolCfg)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}

	c := cache.New(capacity, time.Minute)
	m := monitor.New(100*time.Millisecond, 100, 10)

	s := New(p, c, m, testSchema(), ".")
	t.Cleanup(func() {
		s.Close(drainTimeout) //nolint:errcheck // Test cleanup
	})

	if _, err := s.Migrate(context.Background(), migrate.Latest); err != nil {
		t.Fatalf("migrating test schema: %v", err)
	}

	s.MustRegister(
		Query{
			Name:     "resumes_by_owner",
			SQL:      "SELECT id, title, owner FROM resumes WHERE owner = ? ORDER BY id",
			Entities: []string{"resumes_by_owner"},
		},
		Query{
			Name:     "resumes_all",
			SQL:      "SELECT id, title, owner FROM resumes ORDER BY id",
			Entities: []string{"resumes_all"},
		},
		Query{
			Name:     "resume_insert",
			SQL:      "INSERT INTO resumes (title, owner) VALUES (?, ?)",
			Entities: []string{"resumes_by_owner", "resumes_all"},
		},
	)

	return s
}

func TestRegister(t *testing.T) {
	s := newTestStore(t, 1, 0, 10)

	t.Run("duplicate name", func(t *testing.T) {
		err := s.Register(Query{Name: "resumes_all", SQL: "SELECT 1"})
		if !errors.Is(err, ErrDuplicateQuery) {
			t.Errorf("Register() error = %v, want ErrDuplicateQuery", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		err := s.Register(Query{Name: "no_sql"})
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("Register() error = %v, want ErrInvalidQuery", err)
		}
	})
}

func TestQuery_UnknownName(t *testing.T) {
	s := newTestStore(t, 1, 0, 10)

	_, err := s.Query(context.Background(), "no_such_query")
	if !errors.Is(err, ErrQueryNotFound) {
		t.Fatalf("Query() error = %v, want ErrQueryNotFound", err)
	}
	if !IsConfig(err) {
		t.Error("IsConfig() = false for unknown query, want true")
	}
}

func TestQueryServedFromCache(t *testing.T) {
	s := newTestStore(t, 2, 0, 10)
	ctx := context.Background()

	if _, err := s.Exec(ctx, "resume_insert", "Backend CV", "dana"); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	first, err := s.Query(ctx, "resumes_by_owner", "dana")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if first.Len() != 1 {
		t.Fatalf("Query() returned %d rows, want 1", first.Len())
	}
	if got := first.Columns; len(got) != 3 || got[0] != "id" || got[1] != "title" || got[2] != "owner" {
		t.Errorf("Columns = %v, want [id title owner]", got)
	}
	// Text columns decode as string, not driver byte slices.
	if title, ok := first.Rows[0][1].(string); !ok || title != "Backend CV" {
		t.Errorf("Rows[0][1] = %v (%T), want Backend CV (string)", first.Rows[0][1], first.Rows[0][1])
	}

	second, err := s.Query(ctx, "resumes_by_owner", "dana")
	if err != nil {
		t.Fatalf("second Query() error = %v", err)
	}
	if second != first {
		t.Error("second Query() did not return the cached result")
	}

	// Only one engine execution was timed for the read.
	if got := s.Monitor().Stats("resumes_by_owner").Count; got != 1 {
		t.Errorf("monitored executions = %d, want 1", got)
	}
}

func TestExecInvalidatesEntities(t *testing.T) {
	s := newTestStore(t, 2, 0, 10)
	ctx := context.Background()

	if _, err := s.Exec(ctx, "resume_insert", "First", "dana"); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	before, err := s.Query(ctx, "resumes_by_owner", "dana")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if before.Len() != 1 {
		t.Fatalf("Query() returned %d rows, want 1", before.Len())
	}

	// The write invalidates the cached read, so the next read sees it.
	if _, err := s.Exec(ctx, "resume_insert", "Second", "dana"); err != nil {
		t.Fatalf("second Exec() error = %v", err)
	}

	after, err := s.Query(ctx, "resumes_by_owner", "dana")
	if err != nil {
		t.Fatalf("Query() after write error = %v", err)
	}
	if after.Len() != 2 {
		t.Errorf("Query() after write returned %d rows, want 2", after.Len())
	}
}

func TestExecResult(t *testing.T) {
	s := newTestStore(t, 1, 0, 10)

	res, err := s.Exec(context.Background(), "resume_insert", "Only", "dana")
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", res.RowsAffected)
	}
	if res.LastInsertID != 1 {
		t.Errorf("LastInsertID = %d, want 1", res.LastInsertID)
	}
}

func TestQueryExecutionError(t *testing.T) {
	s := newTestStore(t, 1, 0, 10)

	if err := s.Register(Query{Name: "bad_read", SQL: "SELECT * FROM nonexistent"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := s.Query(context.Background(), "bad_read")
	if !errors.Is(err, ErrQueryExecution) {
		t.Fatalf("Query() error = %v, want ErrQueryExecution", err)
	}

	// The failure was still released and timed as a failure.
	stats := s.Monitor().Stats("bad_read")
	if stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
	if got := s.Pool().Stats().CheckedOut; got != 0 {
		t.Errorf("CheckedOut after failed query = %d, want 0", got)
	}
}

func TestQueryPage(t *testing.T) {
	s := newTestStore(t, 2, 0, 20)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := s.Exec(ctx, "resume_insert", fmt.Sprintf("CV %d", i), "dana"); err != nil {
			t.Fatalf("Exec() error = %v", err)
		}
	}

	t.Run("limit and offset", func(t *testing.T) {
		page, err := s.QueryPage(ctx, "resumes_all", 2, 2)
		if err != nil {
			t.Fatalf("QueryPage() error = %v", err)
		}
		if page.Len() != 2 {
			t.Fatalf("QueryPage() returned %d rows, want 2", page.Len())
		}
		if title := page.Rows[0][1]; title != "CV 3" {
			t.Errorf("first row title = %v, want CV 3", title)
		}
	})

	t.Run("non-positive limit uses default", func(t *testing.T) {
		page, err := s.QueryPage(ctx, "resumes_all", 0, 0)
		if err != nil {
			t.Fatalf("QueryPage() error = %v", err)
		}
		if page.Len() != 5 {
			t.Errorf("QueryPage() returned %d rows, want 5", page.Len())
		}
	})

	t.Run("negative offset treated as zero", func(t *testing.T) {
		page, err := s.QueryPage(ctx, "resumes_all", 2, -3)
		if err != nil {
			t.Fatalf("QueryPage() error = %v", err)
		}
		if title := page.Rows[0][1]; title != "CV 1" {
			t.Errorf("first row title = %v, want CV 1", title)
		}
	})

	t.Run("pages cached independently", func(t *testing.T) {
		before := s.Cache().Stats().Hits
		if _, err := s.QueryPage(ctx, "resumes_all", 2, 2); err != nil {
			t.Fatalf("QueryPage() error = %v", err)
		}
		if got := s.Cache().Stats().Hits; got != before+1 {
			t.Errorf("cache hits = %d, want %d", got, before+1)
		}
	})
}

func TestConcurrentReadsSingleExecution(t *testing.T) {
	s := newTestStore(t, 2, 0, 10)
	ctx := context.Background()

	if _, err := s.Exec(ctx, "resume_insert", "Shared", "dana"); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	s.Monitor().Reset()

	const readers = 5
	results := make([]*Result, readers)
	errs := make([]error, readers)

	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Query(ctx, "resumes_by_owner", "dana")
		}(i)
	}
	wg.Wait()

	for i := 0; i < readers; i++ {
		if errs[i] != nil {
			t.Fatalf("reader %d error = %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("reader %d received a different result value", i)
		}
	}

	// All five readers were served by exactly one engine execution.
	if got := s.Monitor().Stats("resumes_by_owner").Count; got != 1 {
		t.Errorf("monitored executions = %d, want 1", got)
	}
}

func TestMigrateClearsCache(t *testing.T) {
	s := newTestStore(t, 2, 0, 10)
	ctx := context.Background()

	if _, err := s.Query(ctx, "resumes_all"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if s.Cache().Len() != 1 {
		t.Fatalf("cache Len() = %d, want 1", s.Cache().Len())
	}

	if _, err := s.Rollback(ctx, 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if s.Cache().Len() != 0 {
		t.Errorf("cache Len() after rollback = %d, want 0", s.Cache().Len())
	}
}

func TestMigrationPassthroughs(t *testing.T) {
	s := newTestStore(t, 1, 0, 10)
	ctx := context.Background()

	status, err := s.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if status.CurrentVersion != 2 {
		t.Errorf("CurrentVersion = %d, want 2", status.CurrentVersion)
	}

	verify, err := s.VerifyMigrations(ctx)
	if err != nil {
		t.Fatalf("VerifyMigrations() error = %v", err)
	}
	if !verify.IntegrityOK {
		t.Errorf("IntegrityOK = false, errors: %v", verify.Errors)
	}

	reverted, err := s.Rollback(ctx, 0)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if reverted != 2 {
		t.Errorf("Rollback() reverted %d, want 2", reverted)
	}

	applied, err := s.Migrate(ctx, migrate.Latest)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if applied != 2 {
		t.Errorf("Migrate() applied %d, want 2", applied)
	}
}

func TestMigrationHooks(t *testing.T) {
	s := newTestStore(t, 1, 0, 10)
	ctx := context.Background()

	var applied, rolledBack []int
	s.SetMigrationHooks(
		func(r migrate.Record) { applied = append(applied, r.Version) },
		func(r migrate.Record) { rolledBack = append(rolledBack, r.Version) },
	)

	if _, err := s.Rollback(ctx, 0); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if _, err := s.Migrate(ctx, migrate.Latest); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if len(rolledBack) != 2 || rolledBack[0] != 2 || rolledBack[1] != 1 {
		t.Errorf("rolled-back versions = %v, want [2 1]", rolledBack)
	}
	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Errorf("applied versions = %v, want [1 2]", applied)
	}
}

func TestInvalidate(t *testing.T) {
	s := newTestStore(t, 2, 0, 10)
	ctx := context.Background()

	if _, err := s.Query(ctx, "resumes_by_owner", "dana"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if _, err := s.Query(ctx, "resumes_by_owner", "alex"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if got := s.Invalidate("dana"); got != 1 {
		t.Errorf("Invalidate(dana) = %d, want 1", got)
	}
	if got := s.Invalidate("nobody"); got != 0 {
		t.Errorf("Invalidate(nobody) = %d, want 0", got)
	}
	if s.Cache().Len() != 1 {
		t.Errorf("cache Len() = %d, want 1", s.Cache().Len())
	}
}

func TestHealth(t *testing.T) {
	s := newTestStore(t, 2, 1, 10)

	h := s.Health(context.Background())
	if !h.Healthy {
		t.Error("Healthy = false, want true")
	}
	if h.Pool.Idle != 2 {
		t.Errorf("Pool.Idle = %d, want 2", h.Pool.Idle)
	}
	if h.Cache.Capacity != 10 {
		t.Errorf("Cache.Capacity = %d, want 10", h.Cache.Capacity)
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		fn   func(error) bool
		want bool
	}{
		{name: "exhausted pool is transient", err: fmt.Errorf("acquiring: %w", pool.ErrExhausted), fn: IsTransient, want: true},
		{name: "liveness failure is transient", err: pool.ErrLiveness, fn: IsTransient, want: true},
		{name: "checksum mismatch is integrity", err: migrate.ErrChecksumMismatch, fn: IsIntegrity, want: true},
		{name: "unknown query is config", err: ErrQueryNotFound, fn: IsConfig, want: true},
		{name: "execution failure is not transient", err: ErrQueryExecution, fn: IsTransient, want: false},
		{name: "execution failure is not config", err: ErrQueryExecution, fn: IsConfig, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.err); got != tt.want {
				t.Errorf("kind check = %v, want %v", got, tt.want)
			}
		})
	}
}
