// Package api exposes the resolution engine and district administration over
// HTTP. The resolve endpoint is authenticated with district API keys; the
// admin surface is gated upstream.
package api

import (
	"net/http"
	"time"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/brightpath-assess/toolgate/internal/chread"
	"github.com/brightpath-assess/toolgate/internal/plansource"
	"github.com/brightpath-assess/toolgate/internal/resolve"
	"github.com/brightpath-assess/toolgate/internal/storage"
	"github.com/brightpath-assess/toolgate/internal/store"
	"github.com/brightpath-assess/toolgate/internal/visibility"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store      *store.Store
	Catalog    *catalog.Catalog
	Resolver   *resolve.Resolver
	Visibility *visibility.Coordinator
	Plans      plansource.Source // nil if Postgres plan lookups unavailable
	Writer     storage.EventWriter
	Reader     *chread.Reader // nil if ClickHouse unavailable
	Logger     *zap.Logger
	CacheTTL   time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Resolve endpoint (auth required via Bearer dsk_ token)
	mux.HandleFunc("POST /v1/resolve", deps.authMiddleware(deps.handleResolve))

	// Tool catalog (auth required — availability vocabulary per district)
	mux.HandleFunc("GET /v1/tools", deps.authMiddleware(deps.handleListTools))

	// District CRUD (no auth — dashboard auth added later)
	mux.HandleFunc("POST /api/toolgate/districts", deps.handleCreateDistrict)
	mux.HandleFunc("GET /api/toolgate/districts", deps.handleListDistricts)
	mux.HandleFunc("GET /api/toolgate/districts/{district_id}", deps.handleGetDistrict)
	mux.HandleFunc("PATCH /api/toolgate/districts/{district_id}", deps.handleUpdateDistrict)
	mux.HandleFunc("DELETE /api/toolgate/districts/{district_id}", deps.handleDeleteDistrict)
	mux.HandleFunc("POST /api/toolgate/districts/{district_id}/rotate-key", deps.handleRotateKey)

	// Tool policy CRUD (no auth)
	mux.HandleFunc("GET /api/toolgate/districts/{district_id}/policy", deps.handleGetToolPolicy)
	mux.HandleFunc("PUT /api/toolgate/districts/{district_id}/policy", deps.handleReplaceToolPolicy)
	mux.HandleFunc("PATCH /api/toolgate/districts/{district_id}/policy", deps.handleUpdateToolPolicy)

	// Resolution events & analytics (no auth)
	mux.HandleFunc("GET /api/toolgate/resolutions", deps.handleListEvents)
	mux.HandleFunc("GET /api/toolgate/resolutions/{request_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/toolgate/analytics", deps.handleGetAnalytics)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
