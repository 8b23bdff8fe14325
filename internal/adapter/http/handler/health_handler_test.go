package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandler_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name      string
		postgres  Pinger
		redis     Pinger
		status    int
		wantRedis string
	}{
		{"all healthy", ok, ok, http.StatusOK, "ok"},
		{"redis disabled", ok, nil, http.StatusOK, "disabled"},
		{"postgres down", down, ok, http.StatusServiceUnavailable, ""},
		{"redis down", ok, down, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.postgres, tt.redis)
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if tt.wantRedis == "" {
				return
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["redis"] != tt.wantRedis {
				t.Fatalf("expected redis=%s, got %s", tt.wantRedis, body["redis"])
			}
		})
	}
}

func TestHealthHandler_Liveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
