package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
)

// Postgres SQLSTATE codes for integrity constraint violations.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgIntegrityClass      = "23"
)

// classify converts a driver error into the errs taxonomy. Constraint
// failures become *errs.Conflict; the conflicting columns are resolved from
// the constraint name through the schema, never from the message text.
func classify(err error, schema model.Schema) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return &errs.Conflict{
				Kind:       errs.KindUnique,
				Constraint: pgErr.ConstraintName,
				Columns:    schema.Unique[pgErr.ConstraintName],
				Err:        err,
			}
		case pgErr.Code == pgForeignKeyViolation:
			return &errs.Conflict{Kind: errs.KindForeignKey, Constraint: pgErr.ConstraintName, Err: err}
		case strings.HasPrefix(pgErr.Code, pgIntegrityClass):
			return &errs.Conflict{Kind: errs.KindOther, Constraint: pgErr.ConstraintName, Err: err}
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return &errs.Conflict{Kind: errs.KindUnique, Err: err}
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return &errs.Conflict{Kind: errs.KindForeignKey, Err: err}
		case code&0xff == sqlite3.SQLITE_CONSTRAINT:
			return &errs.Conflict{Kind: errs.KindOther, Err: err}
		}
		return err
	}

	return errs.WrapConnection("database", err)
}
