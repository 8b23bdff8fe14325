package handler

import (
	"encoding/json"
	"net/http"

	"github.com/iho/numledger/internal/adapter/http/dto"
	"github.com/iho/numledger/internal/pricing"
)

// PricingHandler ranks provider offers.
type PricingHandler struct {
	optimizer *pricing.Optimizer
}

// NewPricingHandler creates a PricingHandler using optimizer unless a
// request carries its own weights.
func NewPricingHandler(optimizer *pricing.Optimizer) *PricingHandler {
	if optimizer == nil {
		optimizer = pricing.NewOptimizer(pricing.DefaultWeights)
	}
	return &PricingHandler{optimizer: optimizer}
}

// Rank orders options best first.
func (h *PricingHandler) Rank(w http.ResponseWriter, r *http.Request) {
	var req dto.RankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	opt := h.pick(req.Weights)
	writeJSON(w, http.StatusOK, dto.RankResponse{
		Weights: opt.Weights(),
		Options: opt.RankOptions(req.Options),
	})
}

// Optimize picks one operator per country and service.
func (h *PricingHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	opt := h.pick(req.Weights)
	writeJSON(w, http.StatusOK, dto.OptimizeResponse{
		Weights: opt.Weights(),
		Choices: opt.OptimizeTable(req.Table),
	})
}

func (h *PricingHandler) pick(w *pricing.Weights) *pricing.Optimizer {
	if w == nil {
		return h.optimizer
	}
	return pricing.NewOptimizer(*w)
}
