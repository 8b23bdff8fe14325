package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/iho/numledger/internal/adapter/http/dto"
	"github.com/iho/numledger/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/transactions?limit=50", nil)
	if got := parseIntQuery(req, "limit", 10); got != 50 {
		t.Fatalf("expected limit=50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/transactions?limit=invalid", nil)
	if got := parseIntQuery(req, "limit", 10); got != 10 {
		t.Fatalf("expected fallback to default, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got := parseIntQuery(req, "limit", 25); got != 25 {
		t.Fatalf("expected default when missing, got %d", got)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"unverifiable", domain.ErrIntegrityUnverifiable, http.StatusServiceUnavailable},
		{"wrapped unverifiable", fmt.Errorf("guard: %w", domain.ErrIntegrityUnverifiable), http.StatusServiceUnavailable},
		{"violation", domain.ErrWalletIntegrityViolation, http.StatusConflict},
		{"key reused", domain.ErrIdempotencyKeyReused, http.StatusConflict},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{"wallet not found", domain.ErrWalletNotFound, http.StatusNotFound},
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"precision", fmt.Errorf("%w: 5 digits", domain.ErrAmountPrecision), http.StatusBadRequest},
		{"debit type on credit", domain.ErrCreditTypeNotAllowed, http.StatusBadRequest},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestIdempotencyKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if idempotencyKey(req) != nil {
		t.Fatal("expected nil key without header")
	}

	req.Header.Set(IdempotencyKeyHeader, "  abc  ")
	if key := idempotencyKey(req); key == nil || *key != "abc" {
		t.Fatalf("expected trimmed key, got %v", key)
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeError(rr, http.StatusBadRequest, "bad request", "detail")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error != "bad request" {
		t.Fatalf("expected error message to propagate, got %+v", resp)
	}
}
