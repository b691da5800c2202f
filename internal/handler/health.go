package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/db"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
)

type HealthHandler struct {
	db   *sqlx.DB
	docs *service.DocumentService
}

func NewHealthHandler(db *sqlx.DB, docs *service.DocumentService) *HealthHandler {
	return &HealthHandler{db: db, docs: docs}
}

// Health pings both stores and reports 503 when either is down.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "documents": "ok"}
	status := http.StatusOK

	err := db.Ping(r.Context(), h.db)
	if err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	err = h.docs.Ping(ctx)
	if err != nil {
		checks["documents"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
