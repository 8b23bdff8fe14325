package dto

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/pricing"
	"github.com/iho/numledger/internal/usecase"
)

// ReserveRequest represents a request to hold funds.
type ReserveRequest struct {
	RefID       string `json:"ref_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *ReserveRequest) ToUseCaseInput(userID string, key *string) (usecase.ReserveInput, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return usecase.ReserveInput{}, err
	}

	return usecase.ReserveInput{
		UserID:         userID,
		RefID:          r.RefID,
		Amount:         amount,
		Description:    r.Description,
		IdempotencyKey: key,
	}, nil
}

// CommitRequest represents a request to settle a hold.
type CommitRequest struct {
	RefID       string         `json:"ref_id"`
	Amount      string         `json:"amount"`
	Type        string         `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CommitRequest) ToUseCaseInput(userID string, key *string) (usecase.CommitInput, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return usecase.CommitInput{}, err
	}

	return usecase.CommitInput{
		UserID:         userID,
		RefID:          r.RefID,
		Amount:         amount,
		Type:           domain.TransactionType(r.Type),
		Description:    r.Description,
		Metadata:       r.Metadata,
		IdempotencyKey: key,
	}, nil
}

// RollbackRequest represents a request to release a hold.
type RollbackRequest struct {
	RefID       string `json:"ref_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RollbackRequest) ToUseCaseInput(userID string) (usecase.RollbackInput, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return usecase.RollbackInput{}, err
	}

	return usecase.RollbackInput{
		UserID:      userID,
		RefID:       r.RefID,
		Amount:      amount,
		Description: r.Description,
	}, nil
}

// MovementRequest represents a direct credit, debit or charge.
type MovementRequest struct {
	Amount      string         `json:"amount"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *MovementRequest) ToUseCaseInput(userID string, key *string) (usecase.MovementInput, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return usecase.MovementInput{}, err
	}

	return usecase.MovementInput{
		UserID:         userID,
		Amount:         amount,
		Type:           domain.TransactionType(r.Type),
		Description:    r.Description,
		Metadata:       r.Metadata,
		IdempotencyKey: key,
	}, nil
}

// RefundRequest represents a request to reverse a purchase.
type RefundRequest struct {
	RefID       string         `json:"ref_id"`
	Amount      string         `json:"amount"`
	Type        string         `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RefundRequest) ToUseCaseInput(userID string, key *string) (usecase.RefundInput, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return usecase.RefundInput{}, err
	}

	return usecase.RefundInput{
		UserID:         userID,
		RefID:          r.RefID,
		Amount:         amount,
		Type:           domain.TransactionType(r.Type),
		Description:    r.Description,
		Metadata:       r.Metadata,
		IdempotencyKey: key,
	}, nil
}

// RankRequest asks for options ordered best first.
type RankRequest struct {
	Weights *pricing.Weights `json:"weights,omitempty"`
	Options []pricing.Option `json:"options"`
}

// OptimizeRequest asks for the best option per country, service and operator.
type OptimizeRequest struct {
	Weights *pricing.Weights `json:"weights,omitempty"`
	Table   pricing.Table    `json:"table"`
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", domain.ErrInvalidAmount)
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, err.Error())
	}

	return amount, nil
}
