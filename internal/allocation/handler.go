package allocation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-logistics/meridian/internal/platform/httpx"
)

// Handler manages allocation HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.allocate)
	r.Get("/{logisticsDetailsId}", h.list)
	r.Post("/{logisticsDetailsId}/release", h.release)
}

// allocate handles POST /allocations
func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.AllocateTrucks(r.Context(), req.LogisticsDetailsID)
	if err != nil {
		h.logger.Error("allocate trucks",
			slog.Int64("logistics_details_id", req.LogisticsDetailsID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// list handles GET /allocations/{logisticsDetailsId}
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "logisticsDetailsId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "logistics details id must be an integer")
		return
	}
	allocations, err := h.service.ListAllocations(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allocations": allocations})
}

// release handles POST /allocations/{logisticsDetailsId}/release
func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "logisticsDetailsId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "logistics details id must be an integer")
		return
	}
	released, err := h.service.ReleaseAllocations(r.Context(), id)
	if err != nil {
		h.logger.Error("release allocations", slog.Int64("logistics_details_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"released": released})
}
