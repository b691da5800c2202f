package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
)

// Result is the structured outcome of a mutation. Failures are reported
// through ErrorType instead of an error return.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type,omitempty"`
	Data      any    `json:"data,omitempty"`

	Err error `json:"-"`
}

type DeleteResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ErrorType    string `json:"error_type,omitempty"`
	DeletedCount int    `json:"deleted_count"`

	Err error `json:"-"`
}

// Page is one page of an offset-paginated listing.
type Page[T any] struct {
	Items    []*T `json:"items"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Pages    int  `json:"pages"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_prev"`
}

func newPage[T any](items []*T, total, page, pageSize int) Page[T] {
	if items == nil {
		items = []*T{}
	}
	skip := (page - 1) * pageSize
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return Page[T]{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
		HasNext:  skip+len(items) < total,
		HasPrev:  page > 1,
	}
}

func failure(table string, id int64, err error) Result {
	return Result{
		Success:   false,
		Message:   failureMessage(table, id, err),
		ErrorType: errs.Type(err),
		Err:       err,
	}
}

func deleteFailure(table string, id int64, err error) DeleteResult {
	return DeleteResult{
		Success:   false,
		Message:   failureMessage(table, id, err),
		ErrorType: errs.Type(err),
		Err:       err,
	}
}

func failureMessage(table string, id int64, err error) string {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return fmt.Sprintf("%s %d not found", table, id)
	case errors.Is(err, errs.ErrNoData):
		return "no data for update"
	case errors.Is(err, errs.ErrInvalid):
		return err.Error()
	}

	if c, ok := errs.AsConflict(err); ok {
		switch c.Kind {
		case errs.KindUnique:
			slog.Warn("unique constraint violation", "table", table, "id", id, "constraint", c.Constraint)
			if len(c.Columns) > 0 {
				return fmt.Sprintf("%s with the same %s already exists", table, strings.Join(c.Columns, ", "))
			}
			return fmt.Sprintf("%s violates a unique constraint", table)
		case errs.KindForeignKey:
			slog.Warn("foreign key violation", "table", table, "id", id, "constraint", c.Constraint)
			return fmt.Sprintf("%s %d is referenced by dependent records or references a missing record", table, id)
		}
	}

	slog.Error("database error", "table", table, "id", id, "error", err)
	return fmt.Sprintf("database error: %v", err)
}
