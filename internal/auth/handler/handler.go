// Package handler exposes tenant API key management over HTTP. Every route runs behind
// admission and operates only on the bound tenant's keys.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loyalgate/internal/admission"
	admissionmodels "loyalgate/internal/admission/models"
	"loyalgate/internal/auth/models"
	ratelimitmodels "loyalgate/internal/ratelimit/models"
	tenantmodels "loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/httputil"
	"loyalgate/pkg/requestcontext"
)

// Service is the API key management surface.
type Service interface {
	CreateAPIKey(ctx context.Context, scope tenantmodels.Scope, req *models.CreateAPIKeyRequest) (*models.APIKey, string, error)
	ListAPIKeys(ctx context.Context, scope tenantmodels.Scope) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, scope tenantmodels.Scope, keyID id.APIKeyID) (*models.APIKey, error)
}

// Guard wraps handlers in admission for a route.
type Guard interface {
	Middleware(route admission.Route) func(http.Handler) http.Handler
}

type Handler struct {
	keys   Service
	logger *slog.Logger
}

func New(keys Service, logger *slog.Logger) *Handler {
	return &Handler{keys: keys, logger: logger}
}

var (
	createRoute = admission.Route{Name: "api_keys.create", Class: ratelimitmodels.ClassAuth, Scopes: []string{models.ScopeManageAPIKeys}}
	listRoute   = admission.Route{Name: "api_keys.list", Class: ratelimitmodels.ClassRead, Scopes: []string{models.ScopeManageAPIKeys}}
	revokeRoute = admission.Route{Name: "api_keys.revoke", Class: ratelimitmodels.ClassSensitive, Scopes: []string{models.ScopeManageAPIKeys}}
)

// Register mounts the key management routes on r.
func (h *Handler) Register(r chi.Router, guard Guard) {
	r.With(guard.Middleware(createRoute)).Post("/api/auth/api-keys", h.handleCreate)
	r.With(guard.Middleware(listRoute)).Get("/api/auth/api-keys", h.handleList)
	r.With(guard.Middleware(revokeRoute)).Delete("/api/auth/api-keys/{id}", h.handleRevoke)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	rc, scope, ok := h.bound(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.CreateAPIKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	// A caller cannot mint a key stronger than its own credential.
	principal := rc.Principal()
	for _, s := range req.Scopes {
		if !principal.HasScope(s) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "cannot grant scope "+s))
			return
		}
	}

	key, raw, err := h.keys.CreateAPIKey(ctx, scope, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create api key", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.CreatedAPIKey{APIKeyView: key.View(), APIKey: raw})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, scope, ok := h.bound(w, r)
	if !ok {
		return
	}

	keys, err := h.keys.ListAPIKeys(ctx, scope)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list api keys", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	views := make([]models.APIKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, k.View())
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"api_keys": views})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, scope, ok := h.bound(w, r)
	if !ok {
		return
	}

	keyID, err := id.ParseAPIKeyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid api key id"))
		return
	}
	key, err := h.keys.RevokeAPIKey(ctx, scope, keyID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to revoke api key", "request_id", requestcontext.RequestID(ctx), "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, key.View())
}

// bound returns the admitted context and its tenant scope, answering the request itself
// when there is none.
func (h *Handler) bound(w http.ResponseWriter, r *http.Request) (*admissionmodels.RequestContext, tenantmodels.Scope, bool) {
	rc, ok := admissionmodels.FromContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "api key route reached without admission",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "admission context missing"))
		return nil, tenantmodels.Scope{}, false
	}
	scope, ok := rc.Scope()
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "a tenant credential is required"))
		return nil, tenantmodels.Scope{}, false
	}
	return rc, scope, true
}
