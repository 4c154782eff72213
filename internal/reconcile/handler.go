package reconcile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-logistics/meridian/internal/platform/httpx"
	"github.com/meridian-logistics/meridian/internal/shared"
)

// Handler receives payment webhooks.
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
	r.Post("/events", h.applyEvent)
	r.Get("/{transactionNumber}", h.getPayment)
}

// applyEvent handles POST /payments/events. Duplicate deliveries replay the
// stored result with 200; the channel sees the same response either way.
func (h *Handler) applyEvent(w http.ResponseWriter, r *http.Request) {
	var event PaymentEvent
	if err := httpx.DecodeJSON(r, &event); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(event); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	// Zero amounts are only meaningful on failed attempts.
	if event.Amount == 0 && event.Status != EventFailed {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be positive")
		return
	}

	result, err := h.service.ApplyPaymentEvent(r.Context(), event)
	if err != nil {
		if errors.Is(err, shared.ErrUnresolvedInvoice) {
			// The record is persisted; the caller must route it to manual
			// intervention rather than retry blindly.
			h.logger.Warn("unresolved payment",
				slog.String("transaction_number", event.TransactionNumber))
			httpx.JSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		h.logger.Error("apply payment event",
			slog.String("transaction_number", event.TransactionNumber),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// getPayment handles GET /payments/{transactionNumber}.
func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	transactionNumber := chi.URLParam(r, "transactionNumber")
	record, err := h.service.GetPaymentRecord(r.Context(), transactionNumber)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}
