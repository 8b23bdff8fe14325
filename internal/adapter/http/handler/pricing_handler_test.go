package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/adapter/http/dto"
	"github.com/iho/numledger/internal/pricing"
)

func TestPricingHandler_Rank(t *testing.T) {
	h := NewPricingHandler(nil)

	rec := doJSON(t, http.HandlerFunc(h.Rank), http.MethodPost, "/pricing/rank", dto.RankRequest{
		Options: []pricing.Option{
			{Provider: "expensive", Cost: decimal.NewFromInt(10), Count: 100},
			{Provider: "cheap", Cost: decimal.NewFromInt(1), Count: 100},
		},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dto.RankResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Options) != 2 || resp.Options[0].Option.Provider != "cheap" {
		t.Fatalf("expected cheap provider first, got %+v", resp.Options)
	}
	if math.Abs(resp.Weights.Cost-pricing.DefaultWeights.Cost) > 1e-9 {
		t.Fatalf("expected default weights, got %+v", resp.Weights)
	}
}

func TestPricingHandler_RankCustomWeights(t *testing.T) {
	h := NewPricingHandler(nil)

	rec := doJSON(t, http.HandlerFunc(h.Rank), http.MethodPost, "/pricing/rank", dto.RankRequest{
		Weights: &pricing.Weights{Stock: 1},
		Options: []pricing.Option{
			{Provider: "cheap", Cost: decimal.NewFromInt(1), Count: 1},
			{Provider: "stocked", Cost: decimal.NewFromInt(10), Count: 500},
		},
	}, nil)

	var resp dto.RankResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Options[0].Option.Provider != "stocked" {
		t.Fatalf("expected stock-only weights to prefer stocked, got %+v", resp.Options)
	}
}

func TestPricingHandler_Optimize(t *testing.T) {
	h := NewPricingHandler(pricing.NewOptimizer(pricing.DefaultWeights))

	table := pricing.Table{
		"de": {"telegram": {
			"vodafone": {Provider: "a", Cost: decimal.NewFromInt(2), Count: 10},
			"o2":       {Provider: "b", Cost: decimal.NewFromInt(1), Count: 10},
		}},
	}

	rec := doJSON(t, http.HandlerFunc(h.Optimize), http.MethodPost, "/pricing/optimize", dto.OptimizeRequest{Table: table}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dto.OptimizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Operator != "o2" {
		t.Fatalf("unexpected choices %+v", resp.Choices)
	}
}

func TestPricingHandler_BadBody(t *testing.T) {
	h := NewPricingHandler(nil)
	rec := httptest.NewRecorder()
	h.Optimize(rec, httptest.NewRequest(http.MethodPost, "/pricing/optimize", strings.NewReader("[")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
