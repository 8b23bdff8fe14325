package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/iho/numledger/internal/adapter/http/dto"
	"github.com/iho/numledger/internal/domain"
)

// IdempotencyKeyHeader carries the client's operation key.
const IdempotencyKeyHeader = "Idempotency-Key"

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	// Unverifiable must be checked first: it also matches the violation.
	case errors.Is(err, domain.ErrIntegrityUnverifiable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrWalletIntegrityViolation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrAmountTooSmall),
		errors.Is(err, domain.ErrAmountPrecision),
		errors.Is(err, domain.ErrMetadataTooLarge),
		errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrInvalidIdempotencyKey),
		errors.Is(err, domain.ErrInvalidTransactionType),
		errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrCreditTypeNotAllowed),
		errors.Is(err, domain.ErrDebitTypeNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// idempotencyKey returns the trimmed Idempotency-Key header, or nil.
func idempotencyKey(r *http.Request) *string {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		return nil
	}
	return &key
}
