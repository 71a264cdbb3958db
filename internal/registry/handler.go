package registry

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/saimambayao/tms-access/internal/guard"
	"github.com/saimambayao/tms-access/internal/hierarchy"
	"github.com/saimambayao/tms-access/internal/platform/httpx"
	"github.com/saimambayao/tms-access/internal/shared"
)

// Handler manages the permission registry admin endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     guard.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard guard.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermPermissionsView))
		r.Get("/permissions", h.listPermissions)
		r.Get("/permissions/{codename}", h.getPermission)
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{role}/permissions", h.listRolePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermPermissionsEdit))
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Post("/permissions", h.definePermission)
		r.Post("/permissions/{codename}/activate", h.activatePermission)
		r.Post("/permissions/{codename}/deactivate", h.deactivatePermission)
		r.Post("/roles/{role}/permissions", h.grantRolePermission)
		r.Delete("/roles/{role}/permissions/{codename}", h.revokeRolePermission)
	})
}

type definePermissionRequest struct {
	Codename    string `json:"codename" validate:"required,min=2,max=100"`
	Name        string `json:"name" validate:"max=150"`
	Module      string `json:"module" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"max=500"`
}

type grantRequest struct {
	Codename    string `json:"codename" validate:"required,min=2,max=100"`
	CanDelegate bool   `json:"can_delegate"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Codename    string `json:"codename"`
	Name        string `json:"name"`
	Module      string `json:"module"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}

type rolePermissionResponse struct {
	Role        string `json:"role"`
	Codename    string `json:"codename"`
	IsActive    bool   `json:"is_active"`
	CanDelegate bool   `json:"can_delegate"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Lookup(r.Context(), chi.URLParam(r, "codename"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(p))
}

func (h *Handler) definePermission(w http.ResponseWriter, r *http.Request) {
	var req definePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Define(r.Context(), req.Codename, req.Name, req.Module, req.Description)
	if err != nil {
		h.logger.Error("define permission", slog.String("codename", req.Codename), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(p))
}

func (h *Handler) activatePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Activate(r.Context(), chi.URLParam(r, "codename")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (h *Handler) deactivatePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "codename")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "inactive"})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	type roleResponse struct {
		Name string `json:"name"`
		Rank int    `json:"rank"`
	}
	roles := hierarchy.Roles()
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{Name: role, Rank: hierarchy.Rank(role)})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.RolePermissions(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]rolePermissionResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, rolePermissionResponse{Role: g.Role, Codename: g.Codename, IsActive: g.IsActive, CanDelegate: g.CanDelegate})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) grantRolePermission(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role := chi.URLParam(r, "role")
	if err := h.service.Grant(r.Context(), role, req.Codename, req.CanDelegate); err != nil {
		h.logger.Error("grant permission", slog.String("role", role), slog.String("codename", req.Codename), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (h *Handler) revokeRolePermission(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	codename := chi.URLParam(r, "codename")
	if err := h.service.Revoke(r.Context(), role, codename); err != nil {
		h.logger.Error("revoke permission", slog.String("role", role), slog.String("codename", codename), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func toPermissionResponse(p Permission) permissionResponse {
	return permissionResponse{
		ID:          p.ID,
		Codename:    p.Codename,
		Name:        p.Name,
		Module:      p.Module,
		Description: p.Description,
		IsActive:    p.IsActive,
	}
}
