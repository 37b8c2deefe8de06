// Package dao provides typed CRUD operations over the local cache.
//
// Read paths that tolerate absence (GetAll variants) log failures and
// return empty results; write paths return errors to the caller.
package dao

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by operations that require an existing row.
var ErrNotFound = errors.New("dao: row not found")

// stmts caches prepared statements keyed by query text. The cache
// avoids re-parsing SQL for the hot read queries.
type stmts struct {
	db    *sql.DB
	cache sync.Map // map[string]*sql.Stmt
}

func (s *stmts) prepare(query string) (*sql.Stmt, error) {
	if st, ok := s.cache.Load(query); ok {
		return st.(*sql.Stmt), nil
	}
	st, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	actual, loaded := s.cache.LoadOrStore(query, st)
	if loaded {
		st.Close()
		return actual.(*sql.Stmt), nil
	}
	return st, nil
}

// Close closes all cached prepared statements.
func (s *stmts) Close() error {
	var firstErr error
	s.cache.Range(func(_, value any) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

type scanner interface {
	Scan(dest ...any) error
}
