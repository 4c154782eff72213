package fleet

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-logistics/meridian/internal/platform/httpx"
)

// Handler manages fleet registry HTTP endpoints.
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
	r.Get("/trucks", h.listAvailable)
	r.Get("/trucks/{id}", h.getTruck)
	r.Get("/trucks/{id}/capacity", h.getCapacity)
	r.Get("/truck-types", h.listTypes)
	r.Post("/trucks", h.createTruck)
	r.Post("/truck-types", h.createTruckType)
}

// listAvailable handles GET /fleet/trucks?service_type=&from=&until=
func (h *Handler) listAvailable(w http.ResponseWriter, r *http.Request) {
	serviceType := r.URL.Query().Get("service_type")
	windowStart, err := parseTimeParam(r, "from", time.Now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Window", err.Error())
		return
	}
	windowEnd, err := parseTimeParam(r, "until", windowStart.Add(24*time.Hour))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Window", err.Error())
		return
	}

	trucks, err := h.service.ListAvailableTrucks(r.Context(), serviceType, windowStart, windowEnd)
	if err != nil {
		h.logger.Error("list available trucks", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trucks": trucks})
}

// getTruck handles GET /fleet/trucks/{id}
func (h *Handler) getTruck(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "truck id must be an integer")
		return
	}
	truck, err := h.service.GetTruck(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, truck)
}

// getCapacity handles GET /fleet/trucks/{id}/capacity
func (h *Handler) getCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "truck id must be an integer")
		return
	}
	capacity, err := h.service.GetTruckCapacity(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, capacity)
}

// listTypes handles GET /fleet/truck-types
func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListTruckTypes(r.Context())
	if err != nil {
		h.logger.Error("list truck types", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"truck_types": types})
}

// createTruck handles POST /fleet/trucks
func (h *Handler) createTruck(w http.ResponseWriter, r *http.Request) {
	var input TruckInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	truck, err := h.service.RegisterTruck(r.Context(), input)
	if err != nil {
		h.logger.Error("create truck", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, truck)
}

// createTruckType handles POST /fleet/truck-types
func (h *Handler) createTruckType(w http.ResponseWriter, r *http.Request) {
	var input TruckTypeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tt, err := h.service.RegisterTruckType(r.Context(), input)
	if err != nil {
		h.logger.Error("create truck type", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tt)
}

func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
