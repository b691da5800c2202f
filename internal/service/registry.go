package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
)

// Resource is the type-erased view of an EntityService used by the generic
// HTTP routes.
type Resource interface {
	Schema() model.Schema
	GetOrCreate(ctx context.Context, input map[string]any) (any, error)
	ByID(ctx context.Context, id int64) (any, error)
	ListByField(ctx context.Context, column string, value any) (any, error)
	UpdateOrCreate(ctx context.Context, lookup, defaults map[string]any) (any, bool, error)
	All(ctx context.Context, after time.Time, page, pageSize int) (any, error)
	Patch(ctx context.Context, id int64, changes map[string]any) Result
	Delete(ctx context.Context, id int64) DeleteResult
}

type resource[T model.Entity] struct {
	svc *EntityService[T]
}

// AsResource exposes svc through the Resource interface.
func AsResource[T model.Entity](svc *EntityService[T]) Resource {
	return resource[T]{svc: svc}
}

func (r resource[T]) Schema() model.Schema {
	return r.svc.schema
}

func (r resource[T]) GetOrCreate(ctx context.Context, input map[string]any) (any, error) {
	return r.svc.GetOrCreate(ctx, input)
}

func (r resource[T]) ByID(ctx context.Context, id int64) (any, error) {
	return r.svc.ByID(ctx, id)
}

func (r resource[T]) ListByField(ctx context.Context, column string, value any) (any, error) {
	return r.svc.ListByField(ctx, column, value)
}

func (r resource[T]) UpdateOrCreate(ctx context.Context, lookup, defaults map[string]any) (any, bool, error) {
	return r.svc.UpdateOrCreate(ctx, lookup, defaults)
}

func (r resource[T]) All(ctx context.Context, after time.Time, page, pageSize int) (any, error) {
	return r.svc.All(ctx, after, page, pageSize)
}

func (r resource[T]) Patch(ctx context.Context, id int64, changes map[string]any) Result {
	return r.svc.Patch(ctx, id, changes)
}

func (r resource[T]) Delete(ctx context.Context, id int64) DeleteResult {
	return r.svc.Delete(ctx, id)
}

// Registry maps a route tag to its Resource. It is filled once at startup.
type Registry struct {
	resources map[string]Resource
}

func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]Resource)}
}

// Register adds res under tag. It panics on a duplicate tag.
func (r *Registry) Register(tag string, res Resource) {
	if _, ok := r.resources[tag]; ok {
		panic(fmt.Sprintf("service: resource %q registered twice", tag))
	}
	r.resources[tag] = res
}

func (r *Registry) Get(tag string) (Resource, bool) {
	res, ok := r.resources[tag]
	return res, ok
}

// Tags returns the registered tags in lexical order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.resources))
	for tag := range r.resources {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
