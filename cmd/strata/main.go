// Strata - an embedded-database performance layer for SQLite.
//
// Strata fronts a single-writer SQLite file with a bounded connection
// pool, an LRU+TTL query cache, a versioned migration engine and a
// latency monitor, exposed behind one data-access facade. This binary
// hosts the facade together with its optional surfaces: the admin HTTP
// API, InfluxDB metrics export and MQTT event publishing.
//
// Usage:
//
//	strata [command]
//
// Commands:
//
//	serve      run the store with its optional surfaces (default)
//	migrate    apply pending migrations (optionally to a target version)
//	rollback   revert applied migrations down to a target version
//	status     print current schema version and history
//	verify     cross-check applied migration checksums
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/strata/internal/api"
	"github.com/nerrad567/strata/internal/events"
	"github.com/nerrad567/strata/internal/infrastructure/config"
	"github.com/nerrad567/strata/internal/infrastructure/logging"
	"github.com/nerrad567/strata/internal/metrics"
	"github.com/nerrad567/strata/internal/migrate"
	"github.com/nerrad567/strata/internal/monitor"
	"github.com/nerrad567/strata/internal/store"
	"github.com/nerrad567/strata/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// drainTimeout bounds how long shutdown waits for checked-out connections.
const drainTimeout = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	if err := run(ctx, command, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches the subcommand, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - command: Subcommand name (serve, migrate, rollback, status, verify)
//   - args: Remaining command-line arguments
//
// Returns:
//   - error: nil on clean completion, or error describing failure
func run(ctx context.Context, command string, args []string) error {
	log := logging.Default()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)

	st, err := store.Open(cfg, migrations.FS, migrations.Dir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	st.SetLogger(log)
	defer func() {
		log.Info("draining connection pool")
		if closeErr := st.Close(drainTimeout); closeErr != nil {
			log.Error("error draining pool", "error", closeErr)
		}
	}()

	switch command {
	case "serve":
		return serve(ctx, cfg, st, log, configPath)
	case "migrate":
		return runMigrate(ctx, st, args)
	case "rollback":
		return runRollback(ctx, st, args)
	case "status":
		return runStatus(ctx, st)
	case "verify":
		return runVerify(ctx, st)
	default:
		return fmt.Errorf("unknown command %q (expected serve, migrate, rollback, status or verify)", command)
	}
}

// serve runs the store with its optional surfaces until the context is
// cancelled.
func serve(ctx context.Context, cfg *config.Config, st *store.Store, log *logging.Logger, configPath string) error {
	log.Info("starting Strata",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	// Bring the schema up to date before serving.
	applied, err := st.Migrate(ctx, migrate.Latest)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	registerQueries(st)

	// Connect to InfluxDB (optional)
	var metricsClient *metrics.Client
	var reporter *metrics.Reporter
	if cfg.Metrics.Enabled {
		metricsClient, err = metrics.Connect(cfg.Metrics)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := metricsClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		metricsClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.Metrics.URL,
			"org", cfg.Metrics.Org,
			"bucket", cfg.Metrics.Bucket,
		)

		reporter = metrics.NewReporter(metricsClient, st,
			time.Duration(cfg.Metrics.ReportInterval)*time.Second)
		reporter.Start()
		defer reporter.Stop()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker (optional)
	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher, err = events.Connect(cfg.Events)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := publisher.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		publisher.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		publisher.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Events.Broker.Host, cfg.Events.Broker.Port),
			"client_id", cfg.Events.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	wireCallbacks(st, log, metricsClient, publisher)

	// Start admin API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Store:   st,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating admin API: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting admin API: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing admin API", "error", closeErr)
			}
		}()
	} else {
		log.Info("admin API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// wireCallbacks connects the monitor's slow-query callback and the store's
// migration hooks to the optional surfaces. Safe when either is nil.
func wireCallbacks(st *store.Store, log *logging.Logger, metricsClient *metrics.Client, publisher *events.Publisher) {
	st.Monitor().SetOnSlow(func(sample monitor.Sample) {
		log.Warn("slow query",
			"operation", sample.Operation,
			"duration_ms", sample.Duration.Milliseconds(),
			"success", sample.Success,
		)
		if metricsClient != nil {
			metricsClient.WriteQueryLatency(sample)
		}
		if publisher != nil {
			if err := publisher.PublishSlowQuery(sample); err != nil {
				log.Warn("publishing slow-query event", "error", err)
			}
		}
	})

	if publisher != nil {
		st.SetMigrationHooks(
			func(r migrate.Record) {
				if err := publisher.PublishMigrationApplied(r); err != nil {
					log.Warn("publishing migration event", "error", err)
				}
			},
			func(r migrate.Record) {
				if err := publisher.PublishMigrationRolledBack(r); err != nil {
					log.Warn("publishing migration event", "error", err)
				}
			},
		)
	}
}

// registerQueries installs the named queries served by this deployment.
func registerQueries(st *store.Store) {
	st.MustRegister(
		store.Query{
			Name:     "resumes_by_owner",
			SQL:      "SELECT id, title, status, created_at, updated_at FROM resumes WHERE owner = ? ORDER BY updated_at DESC",
			Entities: []string{"resumes_by_owner", "resumes_all"},
		},
		store.Query{
			Name:     "resumes_all",
			SQL:      "SELECT id, title, owner, status, created_at, updated_at FROM resumes ORDER BY id",
			Entities: []string{"resumes_all"},
		},
		store.Query{
			Name:     "resume_sections",
			SQL:      "SELECT id, kind, heading, body, position FROM sections WHERE resume_id = ? ORDER BY position",
			Entities: []string{"resume_sections"},
		},
		store.Query{
			Name:     "templates_all",
			SQL:      "SELECT id, name, description FROM templates ORDER BY name",
			Entities: []string{"templates_all"},
			TTL:      10 * time.Minute, // Templates change rarely
		},
		store.Query{
			Name:     "resume_insert",
			SQL:      "INSERT INTO resumes (title, owner, template_id) VALUES (?, ?, ?)",
			Entities: []string{"resumes_by_owner", "resumes_all"},
		},
		store.Query{
			Name:     "resume_update_status",
			SQL:      "UPDATE resumes SET status = ?, updated_at = datetime('now') WHERE id = ?",
			Entities: []string{"resumes_by_owner", "resumes_all"},
		},
		store.Query{
			Name:     "section_insert",
			SQL:      "INSERT INTO sections (resume_id, kind, heading, body, position) VALUES (?, ?, ?, ?, ?)",
			Entities: []string{"resume_sections"},
		},
	)
}

// runMigrate applies pending migrations. An optional argument names the
// target version; without one the schema moves to the latest version.
func runMigrate(ctx context.Context, st *store.Store, args []string) error {
	target := migrate.Latest
	if len(args) > 0 {
		parsed, err := parseVersion(args[0])
		if err != nil {
			return err
		}
		target = parsed
	}

	applied, err := st.Migrate(ctx, target)
	if err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	fmt.Printf("applied %d migration(s)\n", applied)
	return nil
}

// runRollback reverts migrations down to the required target version.
func runRollback(ctx context.Context, st *store.Store, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("rollback requires a target version (0 rolls everything back)")
	}
	target, err := parseVersion(args[0])
	if err != nil {
		return err
	}

	reverted, err := st.Rollback(ctx, target)
	if err != nil {
		return fmt.Errorf("rolling back: %w", err)
	}
	fmt.Printf("rolled back %d migration(s)\n", reverted)
	return nil
}

// runStatus prints the migration status as JSON.
func runStatus(ctx context.Context, st *store.Store) error {
	status, err := st.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	return printJSON(status)
}

// runVerify prints the integrity check result as JSON, failing the
// command when integrity is broken.
func runVerify(ctx context.Context, st *store.Store) error {
	result, err := st.VerifyMigrations(ctx)
	if err != nil {
		return fmt.Errorf("verifying: %w", err)
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.IntegrityOK {
		return fmt.Errorf("migration integrity check failed")
	}
	return nil
}

// parseVersion parses a version argument.
func parseVersion(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q (expected a non-negative integer)", raw)
	}
	return v, nil
}

// printJSON writes v to stdout with indentation.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// getConfigPath returns the configuration file path.
// Uses STRATA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("STRATA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
