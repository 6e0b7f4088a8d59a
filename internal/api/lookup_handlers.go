package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/httputil"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/repository/postgres"
)

// ListIgnoreDomains returns the ignore list.
func (h *Handlers) ListIgnoreDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.lookups.ListIgnoreDomains(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"domains": domains})
}

// AddIgnoreDomain adds one domain to the ignore list.
func (h *Handlers) AddIgnoreDomain(w http.ResponseWriter, r *http.Request) {
	var d domain.IgnoreDomain
	if !httputil.Decode(w, r, &d) {
		return
	}
	if d.Domain == "" {
		httputil.BadRequest(w, "domain required")
		return
	}
	if err := h.lookups.AddIgnoreDomain(r.Context(), &d); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, d)
}

// RemoveIgnoreDomain deletes a domain from the ignore list.
func (h *Handlers) RemoveIgnoreDomain(w http.ResponseWriter, r *http.Request) {
	dom := chi.URLParam(r, "domain")
	if err := h.lookups.RemoveIgnoreDomain(r.Context(), dom); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			httputil.NotFound(w, "domain not on ignore list")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// GetDomainReputation returns the validation rollup for one domain.
func (h *Handlers) GetDomainReputation(w http.ResponseWriter, r *http.Request) {
	dom := chi.URLParam(r, "domain")
	rep, err := h.reputation.GetDomainReputation(r.Context(), dom)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if rep == nil {
		httputil.NotFound(w, "domain never validated")
		return
	}
	httputil.OK(w, rep)
}

// ListSuppressions returns a page of the suppression list with its size.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	entries, err := h.lookups.ListSuppressions(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	total, err := h.lookups.CountSuppressions(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"entries": entries, "total": total})
}

// AddSuppression adds one address to the suppression list.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var e domain.SuppressionEntry
	if !httputil.Decode(w, r, &e) {
		return
	}
	if e.Address == "" {
		httputil.BadRequest(w, "address required")
		return
	}
	if err := h.lookups.AddSuppression(r.Context(), &e); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, e)
}

// RemoveSuppression deletes an address from the suppression list.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := h.lookups.RemoveSuppression(r.Context(), address); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			httputil.NotFound(w, "address not on suppression list")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ImportSuppressions bulk-loads a suppression file streamed in the
// request body. Multi-GB files are expected; the loader runs at constant
// memory so the request is processed inline.
func (h *Handlers) ImportSuppressions(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "bulk_import"
	}
	res, err := h.loader.Load(r.Context(), r.Body, source, nil)
	if err != nil {
		logger.Error("suppression import", "source", source, "error", err.Error())
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}
