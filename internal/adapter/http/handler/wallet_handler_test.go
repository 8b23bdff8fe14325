package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/adapter/http/dto"
	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

type walletServiceStub struct {
	balanceFn  func(ctx context.Context, userID string) (decimal.Decimal, error)
	walletFn   func(ctx context.Context, userID string) (*domain.Wallet, error)
	listFn     func(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error)
	reserveFn  func(ctx context.Context, input usecase.ReserveInput) (string, error)
	commitFn   func(ctx context.Context, input usecase.CommitInput) (*domain.Transaction, error)
	rollbackFn func(ctx context.Context, input usecase.RollbackInput) error
	movementFn func(ctx context.Context, input usecase.MovementInput) (*domain.Transaction, error)
	refundFn   func(ctx context.Context, input usecase.RefundInput) (*domain.Transaction, error)
}

func (s *walletServiceStub) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.balanceFn(ctx, userID)
}

func (s *walletServiceStub) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return s.walletFn(ctx, userID)
}

func (s *walletServiceStub) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
	return s.listFn(ctx, userID, limit, offset)
}

func (s *walletServiceStub) Reserve(ctx context.Context, input usecase.ReserveInput) (string, error) {
	return s.reserveFn(ctx, input)
}

func (s *walletServiceStub) Commit(ctx context.Context, input usecase.CommitInput) (*domain.Transaction, error) {
	return s.commitFn(ctx, input)
}

func (s *walletServiceStub) Rollback(ctx context.Context, input usecase.RollbackInput) error {
	return s.rollbackFn(ctx, input)
}

func (s *walletServiceStub) Credit(ctx context.Context, input usecase.MovementInput) (*domain.Transaction, error) {
	return s.movementFn(ctx, input)
}

func (s *walletServiceStub) Debit(ctx context.Context, input usecase.MovementInput) (*domain.Transaction, error) {
	return s.movementFn(ctx, input)
}

func (s *walletServiceStub) Charge(ctx context.Context, input usecase.MovementInput) (*domain.Transaction, error) {
	return s.movementFn(ctx, input)
}

func (s *walletServiceStub) Refund(ctx context.Context, input usecase.RefundInput) (*domain.Transaction, error) {
	return s.refundFn(ctx, input)
}

func walletRouter(h *WalletHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/wallets/{userID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/balance", h.Balance)
		r.Get("/transactions", h.Transactions)
		r.Post("/reserve", h.Reserve)
		r.Post("/commit", h.Commit)
		r.Post("/rollback", h.Rollback)
		r.Post("/credit", h.Credit)
		r.Post("/debit", h.Debit)
		r.Post("/charge", h.Charge)
		r.Post("/refund", h.Refund)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWalletHandler_Balance(t *testing.T) {
	h := NewWalletHandler(&walletServiceStub{
		balanceFn: func(ctx context.Context, userID string) (decimal.Decimal, error) {
			if userID != "u1" {
				t.Fatalf("unexpected user %q", userID)
			}
			return decimal.RequireFromString("70.5"), nil
		},
	})

	rec := doJSON(t, walletRouter(h), http.MethodGet, "/wallets/u1/balance", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dto.BalanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "u1" || !resp.Available.Equal(decimal.RequireFromString("70.5")) {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestWalletHandler_GetNotFound(t *testing.T) {
	h := NewWalletHandler(&walletServiceStub{
		walletFn: func(ctx context.Context, userID string) (*domain.Wallet, error) {
			return nil, domain.ErrWalletNotFound
		},
	})

	rec := doJSON(t, walletRouter(h), http.MethodGet, "/wallets/ghost/", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWalletHandler_TransactionsPagination(t *testing.T) {
	var gotLimit, gotOffset int
	h := NewWalletHandler(&walletServiceStub{
		listFn: func(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
			gotLimit, gotOffset = limit, offset
			return []*domain.Transaction{{ID: "t1", Amount: decimal.NewFromInt(5), Type: domain.TxTypeTopup}}, nil
		},
	})

	rec := doJSON(t, walletRouter(h), http.MethodGet, "/wallets/u1/transactions?limit=10&offset=20", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotLimit != 10 || gotOffset != 20 {
		t.Fatalf("unexpected pagination %d/%d", gotLimit, gotOffset)
	}
}

func TestWalletHandler_ReservePassesIdempotencyKey(t *testing.T) {
	var captured usecase.ReserveInput
	h := NewWalletHandler(&walletServiceStub{
		reserveFn: func(ctx context.Context, input usecase.ReserveInput) (string, error) {
			captured = input
			return "w1", nil
		},
	})

	rec := doJSON(t, walletRouter(h), http.MethodPost, "/wallets/u1/reserve",
		dto.ReserveRequest{RefID: "order-1", Amount: "30"},
		map[string]string{IdempotencyKeyHeader: "idem-1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "u1" || captured.RefID != "order-1" || !captured.Amount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected input %+v", captured)
	}
	if captured.IdempotencyKey == nil || *captured.IdempotencyKey != "idem-1" {
		t.Fatalf("expected idempotency key, got %v", captured.IdempotencyKey)
	}

	var resp dto.ReserveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.WalletID != "w1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestWalletHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   any
		err    error
		status int
	}{
		{"reserve insufficient", "/wallets/u1/reserve", dto.ReserveRequest{RefID: "o", Amount: "1"}, domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{"commit violation", "/wallets/u1/commit", dto.CommitRequest{RefID: "o", Amount: "1"}, domain.ErrWalletIntegrityViolation, http.StatusConflict},
		{"commit unverifiable", "/wallets/u1/commit", dto.CommitRequest{RefID: "o", Amount: "1"}, domain.ErrIntegrityUnverifiable, http.StatusServiceUnavailable},
		{"debit missing wallet", "/wallets/u1/debit", dto.MovementRequest{Amount: "1", Type: "purchase"}, domain.ErrWalletNotFound, http.StatusNotFound},
		{"credit bad type", "/wallets/u1/credit", dto.MovementRequest{Amount: "1", Type: "purchase"}, domain.ErrCreditTypeNotAllowed, http.StatusBadRequest},
		{"refund key reuse", "/wallets/u1/refund", dto.RefundRequest{RefID: "o", Amount: "1"}, domain.ErrIdempotencyKeyReused, http.StatusConflict},
		{"rollback internal", "/wallets/u1/rollback", dto.RollbackRequest{RefID: "o", Amount: "1"}, errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWalletHandler(&walletServiceStub{
				reserveFn:  func(context.Context, usecase.ReserveInput) (string, error) { return "", tt.err },
				commitFn:   func(context.Context, usecase.CommitInput) (*domain.Transaction, error) { return nil, tt.err },
				rollbackFn: func(context.Context, usecase.RollbackInput) error { return tt.err },
				movementFn: func(context.Context, usecase.MovementInput) (*domain.Transaction, error) { return nil, tt.err },
				refundFn:   func(context.Context, usecase.RefundInput) (*domain.Transaction, error) { return nil, tt.err },
			})

			rec := doJSON(t, walletRouter(h), http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestWalletHandler_CommitSuccess(t *testing.T) {
	ref := "order-1"
	h := NewWalletHandler(&walletServiceStub{
		commitFn: func(ctx context.Context, input usecase.CommitInput) (*domain.Transaction, error) {
			return &domain.Transaction{
				ID:       "t1",
				WalletID: "w1",
				Amount:   input.Amount.Neg(),
				Type:     domain.TxTypePurchase,
				RefID:    &ref,
			}, nil
		},
	})

	rec := doJSON(t, walletRouter(h), http.MethodPost, "/wallets/u1/commit",
		dto.CommitRequest{RefID: ref, Amount: "30"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp dto.TransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Amount.Equal(decimal.NewFromInt(-30)) {
		t.Fatalf("expected -30, got %s", resp.Amount)
	}
}

func TestWalletHandler_RollbackNoContent(t *testing.T) {
	h := NewWalletHandler(&walletServiceStub{
		rollbackFn: func(context.Context, usecase.RollbackInput) error { return nil },
	})

	rec := doJSON(t, walletRouter(h), http.MethodPost, "/wallets/u1/rollback",
		dto.RollbackRequest{RefID: "o", Amount: "5"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestWalletHandler_BadBody(t *testing.T) {
	h := NewWalletHandler(&walletServiceStub{})

	req := httptest.NewRequest(http.MethodPost, "/wallets/u1/charge", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	walletRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, walletRouter(h), http.MethodPost, "/wallets/u1/charge", dto.MovementRequest{Amount: "abc"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad amount, got %d", rec.Code)
	}
}
