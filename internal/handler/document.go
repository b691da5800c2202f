package handler

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/validation"
)

// DocumentHandler serves the document store routes.
type DocumentHandler struct {
	docs        *service.DocumentService
	cascade     *service.CascadeService
	pagination  Pagination
	constraints validation.FileConstraints
}

func NewDocumentHandler(docs *service.DocumentService, cascade *service.CascadeService, pagination Pagination, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{
		docs:        docs,
		cascade:     cascade,
		pagination:  pagination,
		constraints: validation.FileConstraints{MaxSize: maxUploadSize},
	}
}

type documentView struct {
	storage.FileMeta
	FileURL string `json:"file_url"`
}

func (h *DocumentHandler) view(meta *storage.FileMeta) documentView {
	return documentView{FileMeta: *meta, FileURL: h.cascade.FileURL(meta.ID)}
}

func (h *DocumentHandler) pageView(page service.Page[storage.FileMeta]) service.Page[documentView] {
	items := make([]*documentView, len(page.Items))
	for i, meta := range page.Items {
		v := h.view(meta)
		items[i] = &v
	}
	return service.Page[documentView]{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
		Pages:    page.Pages,
		HasNext:  page.HasNext,
		HasPrev:  page.HasPrev,
	}
}

// readUpload parses a multipart request and validates the "file" part.
// A missing part returns nil when optional is set.
func readUpload(w http.ResponseWriter, r *http.Request, constraints validation.FileConstraints, optional bool) (*validation.UploadedFile, error) {
	if constraints.MaxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, constraints.MaxSize+1<<20)
	}
	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form: %v", validation.ErrInvalidFile, err)
	}

	_, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		if optional {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: file is required", validation.ErrInvalidFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", validation.ErrInvalidFile, err)
	}

	return validation.ReadFile(header, constraints)
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r, h.constraints, false)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	meta, err := h.docs.Upload(r.Context(), storage.NewFile{
		Filename:    upload.Filename,
		Content:     upload.Content,
		ContentType: upload.ContentType,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.view(meta))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size, err := h.pagination.page(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result, err := h.docs.List(r.Context(), page, size)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.pageView(result))
}

func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename query parameter is required")
		return
	}
	page, size, err := h.pagination.page(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result, err := h.docs.Search(r.Context(), filename, page, size)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.pageView(result))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	meta, err := h.docs.Metadata(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.view(meta))
}

func (h *DocumentHandler) Content(w http.ResponseWriter, r *http.Request) {
	content, meta, err := h.docs.Content(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": meta.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// Update replaces content and/or filename from a multipart form with an
// optional "file" part and an optional "filename" field.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r, h.constraints, true)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var update storage.FileUpdate
	if upload != nil {
		update.Content = upload.Content
		update.ContentType = &upload.ContentType
		update.Filename = &upload.Filename
	}
	if name := strings.TrimSpace(r.FormValue("filename")); name != "" {
		update.Filename = &name
	}

	meta, err := h.docs.Update(r.Context(), r.PathValue("id"), update)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.view(meta))
}

// Delete refuses to remove a document that an image still references.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.cascade.DeleteFile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

// Link attaches the document to a Name given by the name_id query
// parameter; file_url is optional.
func (h *DocumentHandler) Link(w http.ResponseWriter, r *http.Request) {
	nameID, err := strconv.ParseInt(r.URL.Query().Get("name_id"), 10, 64)
	if err != nil || nameID < 1 {
		writeErr(w, r, fmt.Errorf("%w: name_id must be a positive integer", errs.ErrInvalid))
		return
	}

	fileID := r.PathValue("id")
	image, err := h.cascade.LinkFile(r.Context(), fileID, nameID, r.URL.Query().Get("file_url"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "File linked successfully",
		"image_id": image.ID,
		"file_id":  fileID,
		"file_url": image.FileURL,
	})
}
