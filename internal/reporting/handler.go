package reporting

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-logistics/meridian/internal/platform/httpx"
)

// Handler serves reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pickups/status", h.pickupStatus)
	r.Get("/revenue", h.revenue)
	r.Get("/outstanding", h.outstanding)
	r.Get("/fleet", h.fleet)
}

// pickupStatus handles GET /reports/pickups/status
func (h *Handler) pickupStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.PickupStatusReport(r.Context())
	if err != nil {
		h.logger.Error("pickup status report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// revenue handles GET /reports/revenue?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) revenue(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from := now.AddDate(0, -12, 0)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "to must be YYYY-MM-DD")
			return
		}
		to = parsed
	}
	if !to.After(from) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "to must be after from")
		return
	}

	report, err := h.service.RevenueReport(r.Context(), from, to)
	if err != nil {
		h.logger.Error("revenue report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// outstanding handles GET /reports/outstanding
func (h *Handler) outstanding(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.OutstandingReport(r.Context())
	if err != nil {
		h.logger.Error("outstanding report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

// fleet handles GET /reports/fleet
func (h *Handler) fleet(w http.ResponseWriter, r *http.Request) {
	utilization, err := h.service.FleetUtilizationReport(r.Context())
	if err != nil {
		h.logger.Error("fleet report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"trucks": utilization})
}
