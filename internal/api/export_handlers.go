package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/httputil"
	"github.com/ignite/listkeeper/internal/service/export"
	"github.com/ignite/listkeeper/internal/worker"
)

type exportRequest struct {
	Filter   domain.ExportFilter `json:"filter"`
	Template string              `json:"template,omitempty"`
}

// StartExport enqueues an export job. Claiming happens in the worker so
// a large export never ties up a request.
func (h *Handlers) StartExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Template == "" && req.Filter.StatusClass == "" {
		httputil.BadRequest(w, "filter.status_class or template required")
		return
	}

	payload, _ := json.Marshal(worker.ExportPayload{
		Filter:      req.Filter,
		Template:    req.Template,
		RequestedBy: userID(r),
	})
	job := &domain.Job{Type: domain.JobExport, Payload: payload}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, job)
}

// ListDownloads returns export history, newest first.
func (h *Handlers) ListDownloads(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	entries, err := h.exports.History(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"downloads": entries})
}

// Redownload streams a previously produced artifact. The same bytes are
// served every time; only the download counter moves.
func (h *Handlers) Redownload(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rc, entry, err := h.exports.Redownload(r.Context(), id)
	if errors.Is(err, export.ErrHistoryNotFound) {
		httputil.NotFound(w, "download not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", entry.Filename))
	io.Copy(w, rc)
}

// GuestExport produces the shadow artifact for an isolated-scope batch.
func (h *Handlers) GuestExport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	entry, err := h.exports.GuestExport(r.Context(), id)
	if errors.Is(err, export.ErrNoRecords) {
		httputil.NotFound(w, "batch has no shadow records")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, entry)
}

// GuestRedownload streams a shadow artifact.
func (h *Handlers) GuestRedownload(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rc, entry, err := h.exports.GuestRedownload(r.Context(), id)
	if errors.Is(err, export.ErrHistoryNotFound) {
		httputil.NotFound(w, "download not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", entry.Filename))
	io.Copy(w, rc)
}

type templateRequest struct {
	Name   string              `json:"name"`
	Filter domain.ExportFilter `json:"filter"`
}

// SaveTemplate creates or updates a named export filter.
func (h *Handlers) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name required")
		return
	}
	tpl, err := h.exports.SaveTemplate(r.Context(), req.Name, req.Filter, userID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, tpl)
}

// ListTemplates returns all saved export templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.exports.Templates(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"templates": tpls})
}

// DeleteTemplate removes a saved export template.
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.exports.DeleteTemplate(r.Context(), name); err != nil {
		if errors.Is(err, export.ErrTemplateNotFound) {
			httputil.NotFound(w, "template not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
