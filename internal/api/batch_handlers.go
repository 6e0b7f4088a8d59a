package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/httputil"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/service/admission"
	"github.com/ignite/listkeeper/internal/worker"
)

const maxUploadMemory = 32 << 20 // 32 MB in memory, rest spools to disk

// UploadBatch accepts a list file, creates a batch and enqueues the
// import job. The file itself is parked in artifact storage for the
// worker to stream.
func (h *Handlers) UploadBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing file field")
		return
	}
	defer file.Close()

	consent := r.FormValue("consent_granted") == "true"
	isolated := r.FormValue("isolated_scope") == "true"

	batch := &domain.Batch{
		Filename:      header.Filename,
		IsolatedScope: isolated,
		UploadedBy:    userID(r),
	}
	if err := h.batches.Create(r.Context(), batch); err != nil {
		httputil.InternalError(w, err)
		return
	}

	source, err := h.store.Put(r.Context(), fmt.Sprintf("upload_batch_%d.txt", batch.ID), file)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	payload, _ := json.Marshal(worker.ImportPayload{
		BatchID:        batch.ID,
		Source:         source,
		UploadedBy:     batch.UploadedBy,
		ConsentGranted: consent,
		IsolatedScope:  isolated,
	})
	job := &domain.Job{Type: domain.JobImport, Payload: payload, BatchID: &batch.ID}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		httputil.InternalError(w, err)
		return
	}

	logger.Info("batch uploaded",
		"batch_id", batch.ID,
		"filename", header.Filename,
		"isolated_scope", isolated,
		"job_id", job.ID)
	httputil.Created(w, map[string]any{"batch": batch, "job": job})
}

// ListBatches returns a page of batches, newest first.
func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	batches, err := h.batches.List(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"batches": batches})
}

// GetBatch returns one batch.
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	batch, err := h.batches.Get(r.Context(), id)
	if errors.Is(err, admission.ErrBatchNotFound) {
		httputil.NotFound(w, "batch not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, batch)
}

// GetBatchStats returns a batch with its validation counters and rating
// distribution.
func (h *Handlers) GetBatchStats(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	stats, err := h.batches.Stats(r.Context(), id)
	if errors.Is(err, admission.ErrBatchNotFound) {
		httputil.NotFound(w, "batch not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// DownloadRejected streams a batch's refused lines as CSV.
func (h *Handlers) DownloadRejected(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=rejected_batch_%d.csv", id))
	if _, err := h.exports.WriteRejected(r.Context(), id, w); err != nil {
		logger.Error("write rejected csv", "batch_id", id, "error", err.Error())
	}
}

type validateRequest struct {
	Method     domain.ValidationMethod `json:"method"`
	Revalidate bool                    `json:"revalidate"`
}

// StartValidation enqueues a validation job for a batch.
func (h *Handlers) StartValidation(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req validateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	switch req.Method {
	case domain.MethodStandard, domain.MethodSMTP:
	case "":
		req.Method = domain.MethodStandard
	default:
		httputil.BadRequest(w, "method must be standard or smtp")
		return
	}

	if _, err := h.batches.Get(r.Context(), id); err != nil {
		if errors.Is(err, admission.ErrBatchNotFound) {
			httputil.NotFound(w, "batch not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	payload, _ := json.Marshal(worker.ValidatePayload{
		BatchID:    id,
		Method:     req.Method,
		Revalidate: req.Revalidate,
	})
	job := &domain.Job{Type: domain.JobValidate, Payload: payload, BatchID: &id}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, job)
}
