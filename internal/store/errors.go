package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateEmail is returned when a client insert loses the race for an
// email address that already has a client.
var ErrDuplicateEmail = errors.New("client email already exists")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ErrDuplicateID is returned by MemoryStore when a record id is reused.
var ErrDuplicateID = errors.New("record id already exists")
