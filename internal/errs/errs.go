// Package errs holds the error taxonomy shared by the store, service and
// handler layers. Store packages translate driver errors into these types so
// nothing above them has to look at a raw driver error.
package errs

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNoData     = errors.New("no data for update")
	ErrReferenced = errors.New("file is referenced by an image")
	ErrInvalid    = errors.New("invalid field value")
)

type ConflictKind string

const (
	KindUnique     ConflictKind = "unique_violation"
	KindForeignKey ConflictKind = "foreign_key_violation"
	KindOther      ConflictKind = "other"
)

// Error types reported in structured results.
const (
	TypeNotFound       = "not_found"
	TypeNoData         = "no_data"
	TypeUnique         = "unique_constraint_violation"
	TypeForeignKey     = "foreign_key_violation"
	TypeDatabase       = "database_error"
	TypeUnavailable    = "store_unavailable"
	TypePartialCascade = "partial_cascade_failure"
	TypeInvalid        = "invalid_input"
	TypeReferencedBlob = "file_referenced"
)

// Conflict is a classified constraint failure.
type Conflict struct {
	Kind       ConflictKind
	Constraint string
	Columns    []string
	Err        error
}

func (c *Conflict) Error() string {
	var b strings.Builder
	b.WriteString(string(c.Kind))
	if c.Constraint != "" {
		fmt.Fprintf(&b, " on %s", c.Constraint)
	}
	if len(c.Columns) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(c.Columns, ", "))
	}
	if c.Err != nil {
		fmt.Fprintf(&b, ": %v", c.Err)
	}
	return b.String()
}

func (c *Conflict) Unwrap() error {
	return c.Err
}

// AsConflict reports whether err carries a Conflict.
func AsConflict(err error) (*Conflict, bool) {
	var c *Conflict
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// IsKind reports whether err is a Conflict of the given kind.
func IsKind(err error, kind ConflictKind) bool {
	c, ok := AsConflict(err)
	return ok && c.Kind == kind
}

// Unavailable marks a failure to reach a store at all.
type Unavailable struct {
	Store string
	Err   error
}

func (u *Unavailable) Error() string {
	return fmt.Sprintf("%s unavailable: %v", u.Store, u.Err)
}

func (u *Unavailable) Unwrap() error {
	return u.Err
}

// IsUnavailable reports whether err is a store connectivity failure.
func IsUnavailable(err error) bool {
	var u *Unavailable
	return errors.As(err, &u)
}

// WrapConnection wraps err as Unavailable when it looks like a network,
// timeout or broken-connection error. Other errors are returned unchanged.
func WrapConnection(store string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return &Unavailable{Store: store, Err: err}
	}
	return err
}

// Type maps an error to the error_type string used in results.
func Type(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return TypeNotFound
	case errors.Is(err, ErrNoData):
		return TypeNoData
	case errors.Is(err, ErrInvalid):
		return TypeInvalid
	case errors.Is(err, ErrReferenced):
		return TypeReferencedBlob
	case IsKind(err, KindUnique):
		return TypeUnique
	case IsKind(err, KindForeignKey):
		return TypeForeignKey
	case IsUnavailable(err):
		return TypeUnavailable
	default:
		return TypeDatabase
	}
}
