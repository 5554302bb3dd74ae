package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/boursechain/boursechain/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v. It validates that
// the Content-Type header is application/json and returns an error for
// missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// WriteDomainError maps domain errors to HTTP responses.
func WriteDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		WriteError(w, http.StatusBadRequest, "validation_error", ve.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrStockNotFound),
		errors.Is(err, domain.ErrTradeNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "Resource not found")
	case errors.Is(err, domain.ErrAccountAlreadyExists),
		errors.Is(err, domain.ErrStockAlreadyExists):
		WriteError(w, http.StatusConflict, err.Error(), "Resource already exists")
	case errors.Is(err, domain.ErrInsufficientFunds):
		WriteError(w, http.StatusBadRequest, err.Error(), "Insufficient cash balance")
	case errors.Is(err, domain.ErrInsufficientHoldings):
		WriteError(w, http.StatusBadRequest, err.Error(), "Insufficient stock holdings")
	case errors.Is(err, domain.ErrNoLiquidity):
		WriteError(w, http.StatusBadRequest, err.Error(), "No liquidity available for market order")
	case errors.Is(err, domain.ErrOrderNotCancellable):
		WriteError(w, http.StatusBadRequest, err.Error(), "Order is not in a cancellable state")
	case errors.Is(err, domain.ErrStoreFailure):
		WriteError(w, http.StatusServiceUnavailable, "store_failure", "Storage temporarily unavailable, retry the request")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
