package service

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isForeignKeyViolation(err error) bool { return pqCode(err) == "23503" }

func isUniqueViolation(err error) bool { return pqCode(err) == "23505" }

// isMissing treats a malformed id (22P02 against a uuid column) the same as
// an id with no row behind it.
func isMissing(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || pqCode(err) == "22P02"
}
