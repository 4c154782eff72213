package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-logistics/meridian/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Duplicate
// payments are not mapped here; handlers replay the stored result with 200.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrUnresolvedInvoice):
		Problem(w, http.StatusUnprocessableEntity, "Unresolved Invoice", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrInsufficientCapacity):
		Problem(w, http.StatusConflict, "Insufficient Capacity", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		Problem(w, http.StatusServiceUnavailable, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
