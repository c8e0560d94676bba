package store

import (
	"fmt"
	"time"
)

// Query is a named statement registered with the store. Callers refer to
// queries by name only; the SQL text never crosses the facade boundary.
type Query struct {
	// Name identifies the query and forms the prefix of its cache keys.
	Name string

	// SQL is the statement text with positional placeholders.
	SQL string

	// Entities names the logical entities the query touches. For write
	// queries they drive cache invalidation; for read queries they are
	// documentation only.
	Entities []string

	// TTL overrides the cache's default entry lifetime when positive.
	TTL time.Duration
}

// Register adds a query definition. Registration is expected at startup,
// before the store serves traffic, but is safe at any time.
func (s *Store) Register(q Query) error {
	if q.Name == "" || q.SQL == "" {
		return fmt.Errorf("%w: name and SQL are required", ErrInvalidQuery)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queries[q.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateQuery, q.Name)
	}
	s.queries[q.Name] = q
	return nil
}

// MustRegister registers a set of queries and panics on the first failure.
// Intended for static registration at process start.
func (s *Store) MustRegister(queries ...Query) {
	for _, q := range queries {
		if err := s.Register(q); err != nil {
			panic(err)
		}
	}
}

// lookup returns the registered query for name.
func (s *Store) lookup(name string) (Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.queries[name]
	if !ok {
		return Query{}, fmt.Errorf("%w: %s", ErrQueryNotFound, name)
	}
	return q, nil
}
