package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/numledger/internal/adapter/http/dto"
)

// IntegrityVerifier checks one wallet against its ledger.
type IntegrityVerifier interface {
	VerifyIntegrity(ctx context.Context, userID string) (bool, error)
}

// SentinelHandler exposes on-demand integrity checks.
type SentinelHandler struct {
	sentinel IntegrityVerifier
}

// NewSentinelHandler creates a new SentinelHandler.
func NewSentinelHandler(sentinel IntegrityVerifier) *SentinelHandler {
	return &SentinelHandler{sentinel: sentinel}
}

// Verify runs an integrity check. A drifted wallet answers 200 with
// intact=false; the user is quarantined as a side effect.
func (h *SentinelHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	intact, err := h.sentinel.VerifyIntegrity(r.Context(), userID)
	if err != nil {
		writeError(w, mapDomainError(err), "integrity check failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.IntegrityResponse{UserID: userID, Intact: intact})
}
