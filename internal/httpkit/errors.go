package httpkit

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the ledger repository reacts to.
const (
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
)

// IsUndefinedTable reports a query against a table that does not exist yet.
func IsUndefinedTable(err error) bool {
	return hasPgCode(err, pgUndefinedTable)
}

// IsUniqueViolation reports an insert that hit a unique constraint.
func IsUniqueViolation(err error) bool {
	return hasPgCode(err, pgUniqueViolation)
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
