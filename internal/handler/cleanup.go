package handler

import (
	"fmt"
	"net/http"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
)

type CleanupHandler struct {
	cleanup *service.CleanupService
}

func NewCleanupHandler(cleanup *service.CleanupService) *CleanupHandler {
	return &CleanupHandler{cleanup: cleanup}
}

func olderThanDays(r *http.Request, def int) (int, error) {
	days, err := queryInt(r, "older_than_days", def)
	if err != nil {
		return 0, err
	}
	if days < 0 {
		return 0, fmt.Errorf("%w: older_than_days must not be negative", errs.ErrInvalid)
	}
	return days, nil
}

// Orphans deletes unreferenced documents. older_than_days defaults to 0,
// which removes every orphan.
func (h *CleanupHandler) Orphans(w http.ResponseWriter, r *http.Request) {
	days, err := olderThanDays(r, 0)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result := h.cleanup.CleanupOrphanedFiles(r.Context(), days)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

// Old deletes documents older than older_than_days (default 30) whether
// referenced or not.
func (h *CleanupHandler) Old(w http.ResponseWriter, r *http.Request) {
	days, err := olderThanDays(r, 30)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result := h.cleanup.CleanupOldFilesOnly(r.Context(), days)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}
