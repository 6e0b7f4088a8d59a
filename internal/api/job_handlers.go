package api

import (
	"errors"
	"net/http"

	"github.com/ignite/listkeeper/internal/pkg/httputil"
	"github.com/ignite/listkeeper/internal/progress"
	"github.com/ignite/listkeeper/internal/repository/postgres"
)

// ListJobs returns a page of jobs, newest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	jobs, err := h.jobs.List(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"jobs": jobs})
}

// GetJob returns one job.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrJobNotFound) {
		httputil.NotFound(w, "job not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, job)
}

// GetJobProgress returns live progress for a running job, falling back
// to the job's stored status when no progress has been published.
func (h *Handlers) GetJobProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, err := h.tracker.Get(r.Context(), id)
	if errors.Is(err, progress.ErrNotFound) {
		job, jerr := h.jobs.Get(r.Context(), id)
		if errors.Is(jerr, postgres.ErrJobNotFound) {
			httputil.NotFound(w, "job not found")
			return
		}
		if jerr != nil {
			httputil.InternalError(w, jerr)
			return
		}
		httputil.OK(w, map[string]any{"job_id": job.ID, "status": job.Status})
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, p)
}

// CancelJob flags a job for cooperative cancellation. The running
// pipeline observes the flag at its next progress checkpoint.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.jobs.RequestCancel(r.Context(), id); err != nil {
		if errors.Is(err, postgres.ErrJobNotFound) {
			httputil.NotFound(w, "job not found or already finished")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	h.tracker.RequestCancel(r.Context(), id)
	httputil.OK(w, map[string]any{"job_id": id, "cancel_requested": true})
}
