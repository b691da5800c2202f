package routes

import (
	"net/http"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/app"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/handler"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/middleware"
)

// SetupRoutes builds the HTTP handler. The returned limiter must be stopped
// on shutdown.
func SetupRoutes(app *app.App) (http.Handler, *middleware.RateLimiter) {
	cfg := app.Cfg
	pagination := handler.Pagination{Default: cfg.PageDefault, Max: cfg.PageMax}

	// Handlers
	documents := handler.NewDocumentHandler(app.DocumentService, app.CascadeService, pagination, cfg.MaxUploadSize)
	cascade := handler.NewCascadeHandler(app.CascadeService, cfg.MaxUploadSize)
	cleanup := handler.NewCleanupHandler(app.CleanupService)
	health := handler.NewHealthHandler(app.DB, app.DocumentService)

	mux := http.NewServeMux()

	// ============================================================================
	// RELATIONAL RESOURCES
	// ============================================================================

	for _, tag := range app.Registry.Tags() {
		res, _ := app.Registry.Get(tag)
		h := handler.NewResourceHandler(res, pagination)
		prefix := "/" + tag

		mux.HandleFunc("POST "+prefix, h.Create)
		mux.HandleFunc("PUT "+prefix, h.Upsert)
		mux.HandleFunc("GET "+prefix, h.List)
		mux.HandleFunc("GET "+prefix+"/by/{field}/{value}", h.ListByField)
		mux.HandleFunc("GET "+prefix+"/{id}", h.Get)
		mux.HandleFunc("PATCH "+prefix+"/{id}", h.Patch)
		mux.HandleFunc("DELETE "+prefix+"/{id}", h.Delete)
	}

	// ============================================================================
	// DOCUMENTS
	// ============================================================================

	docs := "/" + cfg.DocumentsPrefix
	mux.HandleFunc("POST "+docs, documents.Upload)
	mux.HandleFunc("GET "+docs, documents.List)
	mux.HandleFunc("GET "+docs+"/search", documents.Search)
	mux.HandleFunc("GET "+docs+"/{id}", documents.Get)
	mux.HandleFunc("GET "+docs+"/{id}/content", documents.Content)
	mux.HandleFunc("PATCH "+docs+"/{id}", documents.Update)
	mux.HandleFunc("DELETE "+docs+"/{id}", documents.Delete)
	mux.HandleFunc("POST "+docs+"/{id}/link", documents.Link)

	// Cascade: images and documents written together
	cascadePrefix := docs + "-cascade"
	mux.HandleFunc("POST "+cascadePrefix, cascade.Create)
	mux.HandleFunc("GET "+cascadePrefix+"/name/{id}", cascade.FilesByName)
	mux.HandleFunc("DELETE "+cascadePrefix+"/name/{id}", cascade.DeleteByName)
	mux.HandleFunc("DELETE "+cascadePrefix+"/cascade/name/{id}", cascade.DeleteName)
	mux.HandleFunc("DELETE "+cascadePrefix+"/cascade/status/{status}", cascade.DeleteByStatus)
	mux.HandleFunc("GET "+cascadePrefix+"/image/{id}", cascade.FileByImage)

	// ============================================================================
	// MAINTENANCE
	// ============================================================================

	// Cleanup (rate limited)
	limiter := middleware.NewRateLimiter(cfg.CleanupRateLimit, cfg.CleanupRateLimitSpan)
	mux.Handle("POST /cleanup/orphans", limiter.Limit(http.HandlerFunc(cleanup.Orphans)))
	mux.Handle("POST /cleanup/old", limiter.Limit(http.HandlerFunc(cleanup.Old)))

	mux.HandleFunc("GET /health", health.Health)
	mux.Handle("GET /metrics", app.Metrics.Handler())

	// Apply global middleware
	h := middleware.Chain(mux,
		middleware.RequestID,
		middleware.RequestLogging,
		middleware.Metrics(app.Metrics),
	)

	return h, limiter
}
