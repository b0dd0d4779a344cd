package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrNoRows      = errors.New("db: no rows")
	ErrConflict    = errors.New("db: conflict")
)

// Op names used as error context.
const (
	OpGet    = "GET"
	OpMGet   = "MGET"
	OpSet    = "SET"
	OpDel    = "DEL"
	OpPing   = "PING"
	OpQuery  = "QUERY"
	OpExec   = "EXEC"
	OpBegin  = "BEGIN"
	OpCommit = "COMMIT"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
