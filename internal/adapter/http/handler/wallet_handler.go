package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/adapter/http/dto"
	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

// WalletService is the wallet surface the HTTP layer calls.
type WalletService interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	GetWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error)
	Reserve(ctx context.Context, input usecase.ReserveInput) (string, error)
	Commit(ctx context.Context, input usecase.CommitInput) (*domain.Transaction, error)
	Rollback(ctx context.Context, input usecase.RollbackInput) error
	Credit(ctx context.Context, input usecase.MovementInput) (*domain.Transaction, error)
	Debit(ctx context.Context, input usecase.MovementInput) (*domain.Transaction, error)
	Charge(ctx context.Context, input usecase.MovementInput) (*domain.Transaction, error)
	Refund(ctx context.Context, input usecase.RefundInput) (*domain.Transaction, error)
}

// WalletHandler handles wallet-related HTTP requests.
type WalletHandler struct {
	walletUC WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletUC WalletService) *WalletHandler {
	return &WalletHandler{walletUC: walletUC}
}

// Get returns the full wallet of a user.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	wallet, err := h.walletUC.GetWallet(r.Context(), userID)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get wallet", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromDomain(wallet))
}

// Balance returns available funds. A user without a wallet has zero.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	available, err := h.walletUC.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get balance", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{UserID: userID, Available: available})
}

// Transactions lists the user's ledger, newest first.
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	txs, err := h.walletUC.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to list transactions", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionsFromDomain(txs))
}

// Reserve places a hold.
func (h *WalletHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req dto.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "userID"), idempotencyKey(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	walletID, err := h.walletUC.Reserve(r.Context(), input)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to reserve", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, dto.ReserveResponse{WalletID: walletID, RefID: input.RefID})
}

// Commit settles a hold into a debit.
func (h *WalletHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req dto.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "userID"), idempotencyKey(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	tx, err := h.walletUC.Commit(r.Context(), input)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to commit", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(tx))
}

// Rollback releases a hold.
func (h *WalletHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req dto.RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	if err := h.walletUC.Rollback(r.Context(), input); err != nil {
		writeError(w, mapDomainError(err), "failed to rollback", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Credit adds funds.
func (h *WalletHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, "credit", h.walletUC.Credit)
}

// Debit removes settled funds.
func (h *WalletHandler) Debit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, "debit", h.walletUC.Debit)
}

// Charge removes funds without a prior hold.
func (h *WalletHandler) Charge(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, "charge", h.walletUC.Charge)
}

// Refund reverses a purchase.
func (h *WalletHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req dto.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "userID"), idempotencyKey(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	tx, err := h.walletUC.Refund(r.Context(), input)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to refund", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(tx))
}

func (h *WalletHandler) movement(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(context.Context, usecase.MovementInput) (*domain.Transaction, error),
) {
	var req dto.MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "userID"), idempotencyKey(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	tx, err := fn(r.Context(), input)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to "+op, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(tx))
}
