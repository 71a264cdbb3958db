package users

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/saimambayao/tms-access/internal/guard"
	"github.com/saimambayao/tms-access/internal/platform/httpx"
	"github.com/saimambayao/tms-access/internal/resolver"
	"github.com/saimambayao/tms-access/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	resolver  *resolver.Service
	guard     guard.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, res *resolver.Service, guard guard.Middleware) *Handler {
	return &Handler{logger: logger, service: service, resolver: res, guard: guard, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	// Any authenticated identity may inspect its own effective set, used by
	// UIs for feature flagging.
	r.Get("/me/permissions", h.myPermissions)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermUsersView))
		r.Get("/users", h.listUsers)
		r.Get("/users/{userID}", h.getUser)
		r.Get("/users/{userID}/permissions", h.userPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermUsersEdit))
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Post("/users", h.createUser)
		r.Post("/users/{userID}/role", h.changeRole)
	})
}

type createUserRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"required,min=2,max=150"`
	Chapter string `json:"chapter" validate:"max=100"`
}

type changeRoleRequest struct {
	Role   string `json:"role" validate:"required,min=2,max=50"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type userResponse struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Role                string     `json:"role"`
	Chapter             string     `json:"chapter,omitempty"`
	IsActive            bool       `json:"is_active"`
	RoleAssignedAt      *time.Time `json:"role_assigned_at,omitempty"`
	RoleAssignedBy      *int64     `json:"role_assigned_by,omitempty"`
	LastPermissionCheck *time.Time `json:"last_permission_check,omitempty"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Register(r.Context(), req.Email, req.Name, req.Chapter)
	if err != nil {
		h.logger.Error("create user", slog.String("email", req.Email), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req changeRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var actorID *int64
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		actorID = &id.UserID
	}
	var ip *string
	if r.RemoteAddr != "" {
		addr := r.RemoteAddr
		ip = &addr
	}
	user, err := h.service.ChangeRole(r.Context(), userID, req.Role, req.Reason, actorID, ip)
	if err != nil {
		h.logger.Error("change role", slog.Int64("user_id", userID), slog.String("role", req.Role), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondPermissionSet(w, r, shared.Identity{UserID: user.ID, Role: user.Role, Chapter: user.Chapter})
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "you do not have permission to perform this action")
		return
	}
	h.respondPermissionSet(w, r, *id)
}

func (h *Handler) respondPermissionSet(w http.ResponseWriter, r *http.Request, id shared.Identity) {
	set, err := h.resolver.PermissionSet(r.Context(), id)
	if err != nil {
		h.logger.Error("resolve permission set", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	codenames := make([]string, 0, len(set))
	for c := range set {
		codenames = append(codenames, c)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": id.UserID, "role": id.Role, "permissions": codenames})
}

func pathUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		Role:                u.Role,
		Chapter:             u.Chapter,
		IsActive:            u.IsActive,
		RoleAssignedAt:      u.RoleAssignedAt,
		RoleAssignedBy:      u.RoleAssignedBy,
		LastPermissionCheck: u.LastPermissionCheck,
	}
}
