package store

import (
	"errors"

	"github.com/nerrad567/strata/internal/migrate"
	"github.com/nerrad567/strata/internal/pool"
)

var (
	// ErrQueryNotFound indicates a name with no registered query.
	ErrQueryNotFound = errors.New("store: query not registered")

	// ErrDuplicateQuery indicates a second registration under the same name.
	ErrDuplicateQuery = errors.New("store: query already registered")

	// ErrInvalidQuery indicates a registration with no name or no SQL.
	ErrInvalidQuery = errors.New("store: invalid query definition")

	// ErrQueryExecution indicates the database engine rejected a statement.
	ErrQueryExecution = errors.New("store: query execution failed")

	// ErrClosed indicates the store has been shut down.
	ErrClosed = errors.New("store: closed")
)

// IsTransient reports whether err is a resource-pressure failure worth
// retrying with backoff by a caller that knows its operation is idempotent.
// The store itself never retries.
func IsTransient(err error) bool {
	return errors.Is(err, pool.ErrExhausted) || errors.Is(err, pool.ErrLiveness)
}

// IsIntegrity reports whether err is a fatal integrity failure requiring
// operator intervention, such as an applied migration script that has been
// edited after deployment.
func IsIntegrity(err error) bool {
	return errors.Is(err, migrate.ErrChecksumMismatch) || errors.Is(err, migrate.ErrVersionGap)
}

// IsConfig reports whether err stems from how the store was set up rather
// than from runtime conditions.
func IsConfig(err error) bool {
	return errors.Is(err, ErrQueryNotFound) ||
		errors.Is(err, ErrDuplicateQuery) ||
		errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, migrate.ErrBadTarget)
}
