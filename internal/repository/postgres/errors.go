package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/pmapp/authsvc/pkg/errors"
)

const uniqueViolation = "23505"

// isUniqueViolation checks for SQLSTATE 23505 either as a typed pgconn error
// or in the error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return strings.Contains(err.Error(), uniqueViolation)
}

// finish ends a query span. Expected outcomes such as a missing row or a
// lost race are not recorded as span errors.
func finish(end func(error), err error) {
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrConflict) {
		end(nil)
		return
	}
	end(err)
}
