package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
)

type ColumnKind int

const (
	KindInt ColumnKind = iota
	KindString
	KindNullableString
)

type Column struct {
	Name string
	Kind ColumnKind
}

// Schema describes the writable shape of an entity table. It is the single
// source of truth for which input keys are scalar columns, which are relation
// names, and which unique constraints guard which columns.
type Schema struct {
	Table     string
	Columns   []Column
	Relations []string
	// Unique maps a constraint name to the columns it covers.
	Unique map[string][]string
}

// Entity is implemented by every relational model.
type Entity interface {
	Schema() Schema
	EntityID() int64
}

func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (s Schema) IsRelation(field string) bool {
	for _, r := range s.Relations {
		if r == field {
			return true
		}
	}
	return false
}

// Scalars keeps only writable scalar columns from input, converting each
// value to the column's Go type. Relation fields and unknown keys are dropped.
func (s Schema) Scalars(input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))
	for key, value := range input {
		if s.IsRelation(key) {
			continue
		}
		col, ok := s.Column(key)
		if !ok {
			continue
		}
		v, err := normalize(col, value)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// UniqueGroups returns the column sets of every unique constraint, ordered
// by constraint name.
func (s Schema) UniqueGroups() [][]string {
	names := make([]string, 0, len(s.Unique))
	for name := range s.Unique {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([][]string, 0, len(names))
	for _, name := range names {
		groups = append(groups, s.Unique[name])
	}
	return groups
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalize(col Column, value any) (any, error) {
	if value == nil {
		if col.Kind == KindNullableString {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s must not be null", errs.ErrInvalid, col.Name)
	}

	switch col.Kind {
	case KindInt:
		return toInt64(col.Name, value)
	case KindString, KindNullableString:
		switch v := value.(type) {
		case string:
			return v, nil
		case *string:
			if v == nil {
				if col.Kind == KindNullableString {
					return nil, nil
				}
				return nil, fmt.Errorf("%w: %s must not be null", errs.ErrInvalid, col.Name)
			}
			return *v, nil
		case json.Number:
			return v.String(), nil
		default:
			return nil, fmt.Errorf("%w: %s must be a string", errs.ErrInvalid, col.Name)
		}
	}
	return value, nil
}

func toInt64(name string, value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrInvalid, name)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrInvalid, name)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrInvalid, name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrInvalid, name)
	}
}
