package handler

import (
	"net/http"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
)

// ResourceHandler serves the generic CRUD routes of one registered entity.
type ResourceHandler struct {
	resource   service.Resource
	pagination Pagination
}

func NewResourceHandler(resource service.Resource, pagination Pagination) *ResourceHandler {
	return &ResourceHandler{
		resource:   resource,
		pagination: pagination,
	}
}

// Create returns the existing row with the same fields or creates it.
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input map[string]any
	err := decodeJSON(r, &input)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	item, err := h.resource.GetOrCreate(r.Context(), input)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// Upsert patches the row matching "lookup" with "defaults", or creates one
// from both. It answers 201 when a row was created.
func (h *ResourceHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lookup   map[string]any `json:"lookup"`
		Defaults map[string]any `json:"defaults"`
	}
	err := decodeJSON(r, &body)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	item, created, err := h.resource.UpdateOrCreate(r.Context(), body.Lookup, body.Defaults)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, item)
}

// ListByField lists the rows whose field equals the path value.
func (h *ResourceHandler) ListByField(w http.ResponseWriter, r *http.Request) {
	items, err := h.resource.ListByField(r.Context(), r.PathValue("field"), r.PathValue("value"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size, err := h.pagination.page(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	after, err := afterDate(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result, err := h.resource.All(r.Context(), after, page, size)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}

	item, err := h.resource.ByID(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *ResourceHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var changes map[string]any
	err = decodeJSON(r, &changes)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result := h.resource.Patch(r.Context(), id, changes)
	writeJSON(w, statusFor(result.ErrorType), result)
}

func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result := h.resource.Delete(r.Context(), id)
	writeJSON(w, statusFor(result.ErrorType), result)
}
