package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Migration filename parsing constants.
const (
	// filenameParts is the expected number of parts in a migration
	// filename when split on "_": NNN_description.up.sql.
	filenameParts = 2
)

// Migration is a single versioned schema change script.
type Migration struct {
	// Version is the migration's position in the sequence, starting at 1.
	Version int

	// Name is the human-readable migration name from the filename.
	// Example: "001_create_resumes.up.sql" -> "create_resumes"
	Name string

	// UpSQL contains the SQL to apply this migration.
	UpSQL string

	// DownSQL contains the SQL to roll this migration back.
	// Empty if no down script was provided.
	DownSQL string

	// Checksum is the SHA-256 hex digest of UpSQL, recorded on apply
	// and cross-checked by Verify.
	Checksum string
}

// Record is a row in the schema_migrations history table.
// Application records are append-only; rollback removes them.
type Record struct {
	Version    int       `json:"version"`
	Name       string    `json:"name"`
	Checksum   string    `json:"checksum"`
	AppliedAt  time.Time `json:"applied_at"`
	DurationMS int64     `json:"duration_ms"`
}

// checksum computes the SHA-256 hex digest of a script.
func checksum(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

// loadMigrations reads all migration scripts from dir within fsys and
// returns them sorted ascending by version.
//
// Versions must form a gapless sequence starting at 1; anything else
// returns ErrVersionGap.
func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	upFiles, downFiles := categoriseFiles(entries)

	migrations := make([]Migration, 0, len(upFiles))
	for version, upFile := range upFiles {
		m, err := buildMigration(fsys, dir, version, upFile, downFiles[version])
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for i, m := range migrations {
		if m.Version != i+1 {
			return nil, fmt.Errorf("%w: found version %d at position %d", ErrVersionGap, m.Version, i+1)
		}
	}

	return migrations, nil
}

// categoriseFiles groups migration files by version and direction.
func categoriseFiles(entries []fs.DirEntry) (upFiles, downFiles map[int]string) {
	upFiles = make(map[int]string)
	downFiles = make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		version, isUp, ok := parseFilename(name)
		if !ok {
			continue
		}

		if isUp {
			upFiles[version] = name
		} else {
			downFiles[version] = name
		}
	}

	return upFiles, downFiles
}

// parseFilename extracts version and direction from a migration filename.
// Returns version, isUp (true for .up.sql, false for .down.sql), and ok.
func parseFilename(name string) (version int, isUp bool, ok bool) {
	if !strings.HasSuffix(name, ".sql") {
		return 0, false, false
	}

	base := strings.TrimSuffix(name, ".sql")

	switch {
	case strings.HasSuffix(base, ".up"):
		isUp = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		isUp = false
		base = strings.TrimSuffix(base, ".down")
	default:
		return 0, false, false
	}

	// Extract the zero-padded version number (NNN from NNN_description)
	parts := strings.SplitN(base, "_", filenameParts)
	if len(parts) < filenameParts {
		return 0, false, false
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil || version < 1 {
		return 0, false, false
	}

	return version, isUp, true
}

// buildMigration creates a single Migration from its script files.
func buildMigration(fsys fs.FS, dir string, version int, upFile, downFile string) (Migration, error) {
	upSQL, err := fs.ReadFile(fsys, joinPath(dir, upFile))
	if err != nil {
		return Migration{}, fmt.Errorf("reading %s: %w", upFile, err)
	}

	m := Migration{
		Version:  version,
		Name:     extractName(upFile),
		UpSQL:    string(upSQL),
		Checksum: checksum(string(upSQL)),
	}

	if downFile != "" {
		downSQL, err := fs.ReadFile(fsys, joinPath(dir, downFile))
		if err != nil {
			return Migration{}, fmt.Errorf("reading %s: %w", downFile, err)
		}
		m.DownSQL = string(downSQL)
	}

	return m, nil
}

// joinPath joins a directory and file using forward slashes, as fs.FS
// requires regardless of platform.
func joinPath(dir, file string) string {
	if dir == "" || dir == "." {
		return file
	}
	return dir + "/" + file
}

// extractName extracts the human-readable name from a migration filename.
// Example: "002_create_templates.up.sql" -> "create_templates"
func extractName(filename string) string {
	base := strings.TrimSuffix(filename, ".sql")
	base = strings.TrimSuffix(base, ".up")
	base = strings.TrimSuffix(base, ".down")

	parts := strings.SplitN(base, "_", filenameParts)
	if len(parts) == filenameParts {
		return parts[1]
	}
	return base
}
