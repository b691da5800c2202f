package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/validation"
)

// CascadeHandler serves the routes that write a Name's images and their
// documents together.
type CascadeHandler struct {
	cascade     *service.CascadeService
	constraints validation.FileConstraints
}

func NewCascadeHandler(cascade *service.CascadeService, maxUploadSize int64) *CascadeHandler {
	return &CascadeHandler{
		cascade:     cascade,
		constraints: validation.FileConstraints{MaxSize: maxUploadSize},
	}
}

// Create takes a multipart form with name_id, file and an optional file_url.
func (h *CascadeHandler) Create(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r, h.constraints, false)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	nameID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("name_id")), 10, 64)
	if err != nil || nameID < 1 {
		writeErr(w, r, fmt.Errorf("%w: name_id must be a positive integer", errs.ErrInvalid))
		return
	}

	file, err := h.cascade.CreateFile(r.Context(), nameID, service.Upload{
		Filename:    upload.Filename,
		Content:     upload.Content,
		ContentType: upload.ContentType,
		FileURL:     strings.TrimSpace(r.FormValue("file_url")),
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, file)
}

func (h *CascadeHandler) FilesByName(w http.ResponseWriter, r *http.Request) {
	nameID, err := pathInt(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}

	files, err := h.cascade.FilesByName(r.Context(), nameID)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": files,
		"total": len(files),
	})
}

func (h *CascadeHandler) FileByImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := pathInt(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}

	file, err := h.cascade.FileByImage(r.Context(), imageID)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, file)
}

// DeleteByName removes a Name's images and documents and keeps the Name.
func (h *CascadeHandler) DeleteByName(w http.ResponseWriter, r *http.Request) {
	nameID, err := pathInt(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result, err := h.cascade.DeleteByName(r.Context(), nameID)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DeleteName removes a Name with its documents and dependent rows.
func (h *CascadeHandler) DeleteName(w http.ResponseWriter, r *http.Request) {
	nameID, err := pathInt(r, "id")
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result, err := h.cascade.DeleteName(r.Context(), nameID)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *CascadeHandler) DeleteByStatus(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.PathValue("status"))
	if status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	result, err := h.cascade.DeleteByStatus(r.Context(), status)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
