package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/listkeeper/internal/pkg/httputil"
	"github.com/ignite/listkeeper/internal/progress"
	"github.com/ignite/listkeeper/internal/repository/postgres"
	"github.com/ignite/listkeeper/internal/service/export"
	"github.com/ignite/listkeeper/internal/storage"
	"github.com/ignite/listkeeper/internal/worker"
)

// Handlers carries the collaborators the route handlers use.
type Handlers struct {
	batches    *postgres.BatchRepo
	jobs       *postgres.JobRepo
	lookups    *postgres.LookupRepo
	reputation *postgres.ValidationRepo
	exports    *export.Service
	tracker    *progress.Tracker
	store      storage.ArtifactStore
	loader     *worker.SuppressionLoader
}

// NewHandlers wires the handler set.
func NewHandlers(
	batches *postgres.BatchRepo,
	jobs *postgres.JobRepo,
	lookups *postgres.LookupRepo,
	reputation *postgres.ValidationRepo,
	exports *export.Service,
	tracker *progress.Tracker,
	store storage.ArtifactStore,
	loader *worker.SuppressionLoader,
) *Handlers {
	return &Handlers{
		batches:    batches,
		jobs:       jobs,
		lookups:    lookups,
		reputation: reputation,
		exports:    exports,
		tracker:    tracker,
		store:      store,
		loader:     loader,
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// idParam parses the {id} URL parameter. Writes a 400 and returns false
// when it is not a positive integer.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

// pageParams reads limit/offset query parameters with sane bounds.
func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// userID reads the caller identity forwarded by the edge proxy.
func userID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return id
}
