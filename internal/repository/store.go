package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
)

// Epoch is the default watermark for paginated listings.
var Epoch = time.Unix(0, 0).UTC()

// Store is the CRUD contract shared by every relational entity.
type Store[T model.Entity] interface {
	Create(ctx context.Context, fields map[string]any) (*T, error)
	ByID(ctx context.Context, id int64) (*T, error)
	ByFields(ctx context.Context, filter map[string]any) (*T, error)
	ListByField(ctx context.Context, column string, value any) ([]*T, error)
	All(ctx context.Context, after time.Time, skip, limit int) ([]*T, int, error)
	Patch(ctx context.Context, item *T, changes map[string]any) (*T, error)
	Delete(ctx context.Context, item *T) error
	Schema() model.Schema
}

type entityRepository[T model.Entity] struct {
	db     *sqlx.DB
	schema model.Schema
}

func NewStore[T model.Entity](db *sqlx.DB) Store[T] {
	return newEntityRepository[T](db)
}

func newEntityRepository[T model.Entity](db *sqlx.DB) *entityRepository[T] {
	var zero T
	return &entityRepository[T]{db: db, schema: zero.Schema()}
}

func (r *entityRepository[T]) Schema() model.Schema {
	return r.schema
}

func (r *entityRepository[T]) Create(ctx context.Context, fields map[string]any) (*T, error) {
	values, err := r.schema.Scalars(fields)
	if err != nil {
		return nil, err
	}

	cols := model.SortedKeys(values)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		args = append(args, values[c])
	}

	now := time.Now().UTC()
	cols = append(cols, "created_at", "updated_at")
	args = append(args, now, now)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
		r.schema.Table, strings.Join(cols, ", "), placeholders(1, len(cols)))

	var id int64
	err = r.db.QueryRowxContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return nil, classify(err, r.schema)
	}

	return r.ByID(ctx, id)
}

func (r *entityRepository[T]) ByID(ctx context.Context, id int64) (*T, error) {
	item := new(T)
	query := fmt.Sprintf(`SELECT * FROM %s WHERE id = $1`, r.schema.Table)

	err := r.db.GetContext(ctx, item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, r.schema)
	}

	return item, nil
}

// ByFields returns the first row matching every known column in filter.
// Unknown keys and relation names are ignored; a nil value matches NULL.
func (r *entityRepository[T]) ByFields(ctx context.Context, filter map[string]any) (*T, error) {
	values, err := r.schema.Scalars(filter)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errs.ErrNotFound
	}

	where, args := conditions(values)
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s ORDER BY id LIMIT 1`, r.schema.Table, where)

	item := new(T)
	err = r.db.GetContext(ctx, item, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, r.schema)
	}

	return item, nil
}

func (r *entityRepository[T]) ListByField(ctx context.Context, column string, value any) ([]*T, error) {
	values, err := r.schema.Scalars(map[string]any{column: value})
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: unknown column %q", errs.ErrInvalid, column)
	}

	where, args := conditions(values)
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s ORDER BY id`, r.schema.Table, where)

	var items []*T
	err = r.db.SelectContext(ctx, &items, query, args...)
	if err != nil {
		return nil, classify(err, r.schema)
	}

	return items, nil
}

// All lists rows updated after the watermark with offset pagination and
// returns the total number of rows matching the watermark.
func (r *entityRepository[T]) All(ctx context.Context, after time.Time, skip, limit int) ([]*T, int, error) {
	if after.IsZero() {
		after = Epoch
	}
	after = after.UTC()

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE updated_at > $1`, r.schema.Table)
	err := r.db.QueryRowxContext(ctx, countQuery, after).Scan(&total)
	if err != nil {
		return nil, 0, classify(err, r.schema)
	}

	var items []*T
	query := fmt.Sprintf(`SELECT * FROM %s WHERE updated_at > $1 ORDER BY id LIMIT $2 OFFSET $3`, r.schema.Table)
	err = r.db.SelectContext(ctx, &items, query, after, limit, skip)
	if err != nil {
		return nil, 0, classify(err, r.schema)
	}

	return items, total, nil
}

// Patch applies the known columns in changes and returns the refreshed row.
// Constraint failures come back as *errs.Conflict.
func (r *entityRepository[T]) Patch(ctx context.Context, item *T, changes map[string]any) (*T, error) {
	values, err := r.schema.Scalars(changes)
	if err != nil {
		return nil, err
	}
	id := (*item).EntityID()
	if len(values) == 0 {
		return item, nil
	}

	cols := model.SortedKeys(values)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
		args = append(args, values[c])
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(cols)+1))
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, r.schema.Table, strings.Join(sets, ", "), len(cols)+2)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, r.schema)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rows == 0 {
		return nil, errs.ErrNotFound
	}

	return r.ByID(ctx, id)
}

func (r *entityRepository[T]) Delete(ctx context.Context, item *T) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.schema.Table)
	result, err := r.db.ExecContext(ctx, query, (*item).EntityID())
	if err != nil {
		return classify(err, r.schema)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return errs.ErrNotFound
	}

	return nil
}

// conditions builds an AND-ed WHERE clause over the sorted keys of values.
func conditions(values map[string]any) (string, []any) {
	cols := model.SortedKeys(values)
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		v := values[c]
		if v == nil {
			parts = append(parts, c+" IS NULL")
			continue
		}
		args = append(args, v)
		parts = append(parts, fmt.Sprintf("%s = $%d", c, len(args)))
	}
	return strings.Join(parts, " AND "), args
}

func placeholders(start, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(p, ", ")
}
