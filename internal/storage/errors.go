package storage

import (
	"database/sql/driver"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// errors
var (
	ErrSchemaMissing = errors.New("preference table does not exist (migrations not applied)")
	ErrUnavailable   = errors.New("storage backend unavailable")
)

// handlePSQLError maps the PostgreSQL errors of the preference queries to
// the storage errors.
func handlePSQLError(err error, description string) error {
	if errors.Is(err, driver.ErrBadConn) {
		return errors.Wrap(ErrUnavailable, description)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Name() == "undefined_table":
			return errors.Wrap(ErrSchemaMissing, description)
		case pqErr.Code.Class() == "08":
			return errors.Wrapf(ErrUnavailable, "%s: %s", description, pqErr.Message)
		}
	}

	return errors.Wrap(err, description)
}
