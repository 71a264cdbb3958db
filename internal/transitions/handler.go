package transitions

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saimambayao/tms-access/internal/platform/httpx"
	"github.com/saimambayao/tms-access/internal/shared"
)

// PermissionGuard gates routes behind a permission check. Satisfied by
// guard.Middleware.
type PermissionGuard interface {
	RequirePermission(codename string) func(http.Handler) http.Handler
}

// Handler exposes the transition log for audit display.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   PermissionGuard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers transition log routes. Read-only: the log has no
// mutation endpoints anywhere.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermAuditView))
		r.Get("/transitions", h.listRecent)
		r.Get("/users/{userID}/transitions", h.listForUser)
	})
}

type entryResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	FromRole  *string   `json:"from_role"`
	ToRole    string    `json:"to_role"`
	Reason    string    `json:"reason"`
	ChangedBy *int64    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	IPAddress *string   `json:"ip_address,omitempty"`
}

type listResponse struct {
	Rows     []entryResponse `json:"rows"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	HasNext  bool            `json:"has_next"`
}

func (h *Handler) listRecent(w http.ResponseWriter, r *http.Request) {
	page, pageSize := queryPaging(r)
	result, err := h.service.Recent(r.Context(), page, pageSize)
	if err != nil {
		h.logger.Error("list transitions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toListResponse(result))
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	page, pageSize := queryPaging(r)
	result, err := h.service.ForUser(r.Context(), userID, page, pageSize)
	if err != nil {
		h.logger.Error("list user transitions", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toListResponse(result))
}

func queryPaging(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

func toListResponse(result Result) listResponse {
	rows := make([]entryResponse, 0, len(result.Rows))
	for _, e := range result.Rows {
		rows = append(rows, entryResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			FromRole:  e.FromRole,
			ToRole:    e.ToRole,
			Reason:    e.Reason,
			ChangedBy: e.ChangedBy,
			ChangedAt: e.ChangedAt,
			IPAddress: e.IPAddress,
		})
	}
	return listResponse{
		Rows:     rows,
		Page:     result.Paging.Page,
		PageSize: result.Paging.PageSize,
		HasNext:  result.Paging.HasNext,
	}
}
