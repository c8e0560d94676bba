package migrate

import "errors"

// Domain errors for the migrate package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, migrate.ErrChecksumMismatch) {
//	    // integrity failure - stop and page an operator
//	}
var (
	// ErrApply is returned when a forward script fails. The enclosing
	// transaction is rolled back, so the schema is left exactly as it
	// was before the attempt.
	ErrApply = errors.New("migrate: applying migration failed")

	// ErrRollback is returned when a rollback script fails.
	ErrRollback = errors.New("migrate: rolling back migration failed")

	// ErrChecksumMismatch is returned when an applied migration's
	// recorded checksum no longer matches its source script. This is a
	// fatal integrity error requiring operator intervention.
	ErrChecksumMismatch = errors.New("migrate: checksum mismatch on applied migration")

	// ErrNoRollbackScript is returned when rollback is requested past a
	// migration that has no down script.
	ErrNoRollbackScript = errors.New("migrate: migration has no rollback script")

	// ErrVersionGap is returned when the migration sources do not form
	// a gapless ascending sequence starting at 1.
	ErrVersionGap = errors.New("migrate: migration versions must be gapless and start at 1")

	// ErrBadTarget is returned when a target version does not exist.
	ErrBadTarget = errors.New("migrate: unknown target version")
)
