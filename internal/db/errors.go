package db

import (
	"errors"
	"fmt"
)

var ErrNoSuchTable = errors.New("no such table")

// DatabaseError wraps a failure reported by the SQLite engine.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string { return e.Err.Error() }

func (e *DatabaseError) Unwrap() error { return e.Err }

// InvalidIdentifierError rejects a table name outside the plain identifier
// grammar before it reaches any SQL text.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid table name %q: must match [A-Za-z_][A-Za-z0-9_]*", e.Name)
}
