package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-logistics/meridian/internal/platform/httpx"
)

// Handler manages order and company HTTP endpoints.
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

// MountCompanyRoutes registers company routes on the router.
func (h *Handler) MountCompanyRoutes(r chi.Router) {
	r.Post("/", h.createCompany)
	r.Get("/", h.listCompanies)
	r.Get("/{companyId}", h.getCompany)
}

// MountInvoiceRoutes registers invoice routes on the router.
func (h *Handler) MountInvoiceRoutes(r chi.Router) {
	r.Get("/{reference}", h.getInvoiceByReference)
}

// MountPickupRoutes registers pickup routes on the router.
func (h *Handler) MountPickupRoutes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/", h.listPickups)
	r.Get("/{pickupId}", h.getPickup)
	r.Get("/{pickupId}/logistics", h.getLogistics)
	r.Get("/{pickupId}/gate", h.getGate)
	r.Post("/{pickupId}/out-for-delivery", h.outForDelivery)
	r.Post("/{pickupId}/delivered", h.delivered)
	r.Post("/{pickupId}/cancel", h.cancel)
	r.Put("/{pickupId}/simulated-times", h.simulatedTimes)
}

// createCompany handles POST /companies
func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var input CompanyInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	company, err := h.service.CreateCompany(r.Context(), input)
	if err != nil {
		h.logger.Error("create company", slog.String("name", input.Name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, company)
}

// listCompanies handles GET /companies
func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.ListCompanies(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"companies": companies})
}

// getCompany handles GET /companies/{companyId}
func (h *Handler) getCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "companyId")
	if !ok {
		return
	}
	company, err := h.service.GetCompany(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

// getInvoiceByReference handles GET /invoices/{reference}
func (h *Handler) getInvoiceByReference(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	invoice, err := h.service.GetInvoiceByReference(r.Context(), reference)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

// createOrder handles POST /pickups
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var input CreateOrderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.logger.Error("create order", slog.Int64("company_id", input.CompanyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// listPickups handles GET /pickups?companyId=N
func (h *Handler) listPickups(w http.ResponseWriter, r *http.Request) {
	var companyID int64
	if raw := r.URL.Query().Get("companyId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "companyId must be an integer")
			return
		}
		companyID = parsed
	}
	pickups, err := h.service.ListPickups(r.Context(), companyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pickups": pickups})
}

// getPickup handles GET /pickups/{pickupId}
func (h *Handler) getPickup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "pickupId")
	if !ok {
		return
	}
	pickup, err := h.service.GetPickup(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pickup)
}

// getLogistics handles GET /pickups/{pickupId}/logistics
func (h *Handler) getLogistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "pickupId")
	if !ok {
		return
	}
	details, err := h.service.GetLogisticsDetails(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, details)
}

// getGate handles GET /pickups/{pickupId}/gate
func (h *Handler) getGate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "pickupId")
	if !ok {
		return
	}
	gate, err := h.service.PaymentGateFor(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"payment_status": gate.Status,
		"total_amount":   gate.TotalAmount,
		"payments_net":   gate.PaymentsNet,
		"loan_disbursed": gate.LoanDisbursed,
		"allow_partial":  gate.AllowPartial,
		"unlocked":       gate.Unlocked(),
	})
}

// outForDelivery handles POST /pickups/{pickupId}/out-for-delivery
func (h *Handler) outForDelivery(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, h.service.MarkOutForDelivery)
}

// delivered handles POST /pickups/{pickupId}/delivered
func (h *Handler) delivered(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, h.service.MarkDelivered)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, pickupID int64) (*LogisticsDetails, error)) {
	id, ok := pathID(w, r, "pickupId")
	if !ok {
		return
	}
	details, err := fn(r.Context(), id)
	if err != nil {
		h.logger.Error("advance logistics", slog.Int64("pickup_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, details)
}

// cancel handles POST /pickups/{pickupId}/cancel
func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "pickupId")
	if !ok {
		return
	}
	pickup, err := h.service.CancelPickup(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel pickup", slog.Int64("pickup_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pickup)
}

type simulatedTimesRequest struct {
	SimulatedPickupAt   *time.Time `json:"simulated_pickup_at,omitempty"`
	SimulatedDeliveryAt *time.Time `json:"simulated_delivery_at,omitempty"`
}

// simulatedTimes handles PUT /pickups/{pickupId}/simulated-times
func (h *Handler) simulatedTimes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "pickupId")
	if !ok {
		return
	}
	var req simulatedTimesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.service.RecordSimulatedTimes(r.Context(), id, req.SimulatedPickupAt, req.SimulatedDeliveryAt); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", name+" must be an integer")
		return 0, false
	}
	return id, true
}
