package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-logistics/meridian/internal/platform/httpx"
)

// Handler exposes the ledger over HTTP. Appends through this surface are for
// manual entries (expenses, loans, refunds); payment credits arrive through
// reconciliation only.
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
	r.Post("/entries", h.append)
	r.Get("/invoices/{invoiceId}/entries", h.listByInvoice)
	r.Get("/invoices/{invoiceId}/balance", h.balance)
}

// append handles POST /ledger/entries
func (h *Handler) append(w http.ResponseWriter, r *http.Request) {
	var input AppendInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if input.Type == TypePaymentReceived {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Entry Type",
			"payment credits are recorded through payment reconciliation")
		return
	}

	entry, err := h.service.Append(r.Context(), input)
	if err != nil {
		h.logger.Error("append ledger entry",
			slog.Int64("invoice_id", input.InvoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

// listByInvoice handles GET /ledger/invoices/{invoiceId}/entries
func (h *Handler) listByInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "invoiceId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be an integer")
		return
	}
	entries, err := h.service.ListByInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// balance handles GET /ledger/invoices/{invoiceId}/balance
func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "invoiceId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be an integer")
		return
	}
	balance, err := h.service.InvoiceBalance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice_id": id, "balance": balance})
}
