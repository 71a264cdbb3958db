package overrides

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/saimambayao/tms-access/internal/platform/httpx"
	"github.com/saimambayao/tms-access/internal/shared"
)

// PermissionGuard gates routes behind a permission check. Satisfied by
// guard.Middleware.
type PermissionGuard interface {
	RequirePermission(codename string) func(http.Handler) http.Handler
}

// Handler manages the override admin endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     PermissionGuard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers override routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermOverridesEdit))
		r.Get("/users/{userID}/overrides", h.listOverrides)
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Minute))
			r.Put("/users/{userID}/overrides", h.setOverride)
			r.Delete("/users/{userID}/overrides/{codename}", h.clearOverride)
		})
	})
}

type setOverrideRequest struct {
	Codename  string     `json:"codename" validate:"required,min=2,max=100"`
	IsGranted bool       `json:"is_granted"`
	Reason    string     `json:"reason" validate:"required,min=3,max=500"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type overrideResponse struct {
	Codename  string     `json:"codename"`
	IsGranted bool       `json:"is_granted"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	rows, err := h.service.ListFor(r.Context(), userID)
	if err != nil {
		h.logger.Error("list overrides", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]overrideResponse, 0, len(rows))
	for _, o := range rows {
		out = append(out, overrideResponse{
			Codename:  o.Codename,
			IsGranted: o.IsGranted,
			Reason:    o.Reason,
			ExpiresAt: o.ExpiresAt,
			CreatedAt: o.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req setOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	saved, err := h.service.Set(r.Context(), userID, req.Codename, req.IsGranted, req.Reason, req.ExpiresAt, actorID(r), remoteIP(r))
	if err != nil {
		h.logger.Error("set override", slog.Int64("user_id", userID), slog.String("codename", req.Codename), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overrideResponse{
		Codename:  saved.Codename,
		IsGranted: saved.IsGranted,
		Reason:    saved.Reason,
		ExpiresAt: saved.ExpiresAt,
		CreatedAt: saved.CreatedAt,
	})
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	codename := chi.URLParam(r, "codename")
	if err := h.service.Clear(r.Context(), userID, codename, actorID(r), remoteIP(r)); err != nil {
		h.logger.Error("clear override", slog.Int64("user_id", userID), slog.String("codename", codename), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func pathUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

func actorID(r *http.Request) *int64 {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return &id.UserID
	}
	return nil
}

func remoteIP(r *http.Request) *string {
	if r.RemoteAddr == "" {
		return nil
	}
	addr := r.RemoteAddr
	return &addr
}
