package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Driver messages for a unique violation on the dialects without a typed
// error: mysql 1062 and sqlite 2067.
var uniqueViolationMessages = []string{
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports whether err is a unique-index violation on any of
// the supported dialects.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if code, ok := pgCode(err); ok {
		return code == "23505"
	}
	msg := err.Error()
	for _, marker := range uniqueViolationMessages {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func pgCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	return pgErr.Code, true
}
