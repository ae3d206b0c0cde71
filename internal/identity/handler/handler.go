// Package handler exposes the identity service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"
	"persona/pkg/platform/httputil"

	"persona/internal/audit"
	"persona/internal/identity/cache"
	"persona/internal/identity/registry"
	"persona/internal/identity/switcher"
)

// History is the audit read surface the handler exposes.
type History interface {
	History(ctx context.Context, identityID id.IdentityID) ([]audit.Entry, error)
}

type Handler struct {
	registry *registry.Registry
	switcher *switcher.Switcher
	cache    *cache.Manager
	trail    History
	logger   *slog.Logger
}

func New(reg *registry.Registry, sw *switcher.Switcher, c *cache.Manager, trail History, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, switcher: sw, cache: c, trail: trail, logger: logger}
}

// Routes mounts the identity endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/identities", h.createIdentity)
	r.Delete("/identities/{id}", h.deleteIdentity)
	r.Get("/identities/{id}", h.getIdentity)
	r.Post("/identities/switch", h.switchIdentity)
	r.Post("/identities/{id}/kyc", h.submitKYC)
	r.Get("/identities/tree/{rootID}", h.getTree)
	r.Get("/identities/{id}/audit", h.getAuditHistory)
	r.Get("/cache/stats", h.getCacheStats)
}

func (h *Handler) createIdentity(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	parentID, meta, err := req.parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	identity, err := h.registry.Create(r.Context(), parentID, meta)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, identity)
}

func (h *Handler) deleteIdentity(w http.ResponseWriter, r *http.Request) {
	identityID, err := id.ParseIdentityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid identity id"))
		return
	}
	deleted, err := h.registry.Delete(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := deleteIdentityResponse{Count: len(deleted)}
	for _, removedID := range deleted {
		resp.Deleted = append(resp.Deleted, removedID.String())
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) getIdentity(w http.ResponseWriter, r *http.Request) {
	identityID, err := id.ParseIdentityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid identity id"))
		return
	}
	identity, err := h.registry.Get(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, identity)
}

func (h *Handler) switchIdentity(w http.ResponseWriter, r *http.Request) {
	var req switchIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	targetID, err := req.parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.switcher.Switch(r.Context(), targetID)
	if err != nil {
		// A rolled-back switch still carries a result worth returning.
		if result != nil {
			httputil.WriteJSON(w, httputil.ToHTTPStatus(dErrors.CodeOf(err)), result)
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) submitKYC(w http.ResponseWriter, r *http.Request) {
	identityID, err := id.ParseIdentityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid identity id"))
		return
	}
	var req submitKYCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	identity, err := h.registry.SubmitKYC(r.Context(), identityID, req.Level, req.Approved)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, identity)
}

func (h *Handler) getTree(w http.ResponseWriter, r *http.Request) {
	rootID, err := id.ParseIdentityID(chi.URLParam(r, "rootID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid root id"))
		return
	}
	tree, err := h.registry.Tree(r.Context(), rootID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tree)
}

func (h *Handler) getAuditHistory(w http.ResponseWriter, r *http.Request) {
	identityID, err := id.ParseIdentityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid identity id"))
		return
	}
	entries, err := h.trail.History(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) getCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "cache disabled"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.cache.Stats())
}
