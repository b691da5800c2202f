package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/repository"
)

// EntityService implements get-or-create, patch, delete and paginated
// listing for one relational entity.
type EntityService[T model.Entity] struct {
	store  repository.Store[T]
	schema model.Schema
}

func NewEntityService[T model.Entity](store repository.Store[T]) *EntityService[T] {
	return &EntityService[T]{
		store:  store,
		schema: store.Schema(),
	}
}

// GetOrCreate returns the row whose scalar fields all equal input, creating
// it when none exists. Relation fields and unknown keys in input are ignored.
// A unique violation on create is treated as a lost race: the winner is
// looked up by the conflicting columns and returned.
func (s *EntityService[T]) GetOrCreate(ctx context.Context, input map[string]any) (*T, error) {
	values, err := s.schema.Scalars(input)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no %s fields in input", errs.ErrInvalid, s.schema.Table)
	}

	item, err := s.store.ByFields(ctx, values)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	item, err = s.store.Create(ctx, values)
	if err == nil {
		return item, nil
	}

	conflict, ok := errs.AsConflict(err)
	if !ok || conflict.Kind != errs.KindUnique {
		return nil, err
	}

	winner, lookupErr := s.winner(ctx, values, conflict)
	if lookupErr != nil {
		slog.Warn("unique conflict without a matching row",
			"table", s.schema.Table,
			"constraint", conflict.Constraint,
			"error", lookupErr,
		)
		return nil, err
	}

	slog.Debug("get-or-create resolved by existing row",
		"table", s.schema.Table,
		"constraint", conflict.Constraint,
		"id", (*winner).EntityID(),
	)
	return winner, nil
}

// winner finds the row that holds the unique values in values. The
// conflict's own columns are tried first, then every declared unique group.
func (s *EntityService[T]) winner(ctx context.Context, values map[string]any, conflict *errs.Conflict) (*T, error) {
	groups := make([][]string, 0, len(s.schema.Unique)+1)
	if len(conflict.Columns) > 0 {
		groups = append(groups, conflict.Columns)
	}
	groups = append(groups, s.schema.UniqueGroups()...)

	for _, cols := range groups {
		filter := make(map[string]any, len(cols))
		for _, c := range cols {
			v, ok := values[c]
			if !ok {
				break
			}
			filter[c] = v
		}
		if len(filter) != len(cols) {
			continue
		}

		item, err := s.store.ByFields(ctx, filter)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return item, nil
	}

	return nil, errs.ErrNotFound
}

func (s *EntityService[T]) ByID(ctx context.Context, id int64) (*T, error) {
	return s.store.ByID(ctx, id)
}

// ListByField returns every row whose column equals value, oldest first.
func (s *EntityService[T]) ListByField(ctx context.Context, column string, value any) ([]*T, error) {
	if _, ok := s.schema.Column(column); !ok || s.schema.IsRelation(column) {
		return nil, fmt.Errorf("%w: unknown %s field %q", errs.ErrInvalid, s.schema.Table, column)
	}
	items, err := s.store.ListByField(ctx, column, value)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*T{}
	}
	return items, nil
}

func (s *EntityService[T]) Patch(ctx context.Context, id int64, changes map[string]any) Result {
	item, err := s.store.ByID(ctx, id)
	if err != nil {
		return failure(s.schema.Table, id, err)
	}

	values, err := s.schema.Scalars(changes)
	if err != nil {
		return failure(s.schema.Table, id, err)
	}
	if len(values) == 0 {
		return failure(s.schema.Table, id, errs.ErrNoData)
	}

	updated, err := s.store.Patch(ctx, item, values)
	if err != nil {
		return failure(s.schema.Table, id, err)
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("%s %d updated", s.schema.Table, id),
		Data:    updated,
	}
}

func (s *EntityService[T]) Delete(ctx context.Context, id int64) DeleteResult {
	item, err := s.store.ByID(ctx, id)
	if err != nil {
		return deleteFailure(s.schema.Table, id, err)
	}

	err = s.store.Delete(ctx, item)
	if err != nil {
		return deleteFailure(s.schema.Table, id, err)
	}

	return DeleteResult{
		Success:      true,
		Message:      fmt.Sprintf("%s %d deleted", s.schema.Table, id),
		DeletedCount: 1,
	}
}

// All returns page (1-based) of rows updated after the watermark.
func (s *EntityService[T]) All(ctx context.Context, after time.Time, page, pageSize int) (Page[T], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return Page[T]{}, fmt.Errorf("%w: page_size must be positive", errs.ErrInvalid)
	}

	skip := (page - 1) * pageSize
	items, total, err := s.store.All(ctx, after, skip, pageSize)
	if err != nil {
		return Page[T]{}, err
	}

	return newPage(items, total, page, pageSize), nil
}

// UpdateOrCreate patches the row matching lookup with defaults, or creates
// a row from lookup and defaults combined. The bool reports creation. Both
// maps are reduced to scalar columns first; an empty lookup is invalid.
func (s *EntityService[T]) UpdateOrCreate(ctx context.Context, lookup, defaults map[string]any) (*T, bool, error) {
	match, err := s.schema.Scalars(lookup)
	if err != nil {
		return nil, false, err
	}
	if len(match) == 0 {
		return nil, false, fmt.Errorf("%w: no %s fields in lookup", errs.ErrInvalid, s.schema.Table)
	}
	changes, err := s.schema.Scalars(defaults)
	if err != nil {
		return nil, false, err
	}

	item, err := s.store.ByFields(ctx, match)
	if err == nil {
		updated, err := s.store.Patch(ctx, item, changes)
		return updated, false, err
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, false, err
	}

	fields := maps.Clone(match)
	maps.Copy(fields, changes)

	created, err := s.store.Create(ctx, fields)
	if err == nil {
		return created, true, nil
	}
	if !errs.IsKind(err, errs.KindUnique) {
		return nil, false, err
	}

	// Lost a race with a concurrent create of the same lookup.
	item, lookupErr := s.store.ByFields(ctx, match)
	if lookupErr != nil {
		return nil, false, err
	}
	updated, err := s.store.Patch(ctx, item, changes)
	return updated, false, err
}
