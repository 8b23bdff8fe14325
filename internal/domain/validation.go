package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrAmountTooLarge         = errors.New("amount exceeds maximum allowed")
	ErrAmountTooSmall         = errors.New("amount below minimum allowed")
	ErrAmountPrecision        = errors.New("amount has too many fractional digits")
	ErrMetadataTooLarge       = errors.New("metadata size exceeds limit")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidIdempotencyKey  = errors.New("invalid idempotency key")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidReference       = errors.New("invalid reference id")
	ErrCreditTypeNotAllowed   = errors.New("transaction type is not a credit")
	ErrDebitTypeNotAllowed    = errors.New("transaction type is not a debit")
)

// Validation constants
const (
	MaxMetadataSize         = 10240 // 10KB
	MaxAmount               = "1000000000"
	MinAmount               = "0.01"
	MaxAmountScale          = 4
	MaxUserIDLength         = 128
	MaxIdempotencyKeyLength = 255
	MaxReferenceLength      = 255
)

var (
	minAmount = decimal.RequireFromString(MinAmount)
	maxAmount = decimal.RequireFromString(MaxAmount)
)

// Types that reduce the balance. Everything else is a credit.
var debitTypes = map[TransactionType]bool{
	TxTypeManualDebit:          true,
	TxTypePurchase:             true,
	TxTypeNumberPurchase:       true,
	TxTypeSubscriptionPurchase: true,
	TxTypeItemPurchase:         true,
	TxTypeP2PTransferOut:       true,
	TxTypeChargeback:           true,
	TxTypeAdjustment:           true,
}

// Types that increase the balance.
var creditTypes = map[TransactionType]bool{
	TxTypeTopup:          true,
	TxTypeManualCredit:   true,
	TxTypeReferralBonus:  true,
	TxTypeRedeemCode:     true,
	TxTypeRefund:         true,
	TxTypeP2PTransferIn:  true,
	TxTypeDeposit:        true,
	TxTypeDepositFailed:  true,
	TxTypeDepositExpired: true,
	TxTypeAdjustment:     true,
}

// ValidateAmount validates a money amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if amount.LessThan(minAmount) {
		return fmt.Errorf("%w: minimum amount is %s", ErrAmountTooSmall, MinAmount)
	}

	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxAmount)
	}

	if !amount.Equal(amount.Truncate(MaxAmountScale)) {
		return fmt.Errorf("%w: at most %d allowed", ErrAmountPrecision, MaxAmountScale)
	}

	return nil
}

// ValidateUserID validates an external user identifier.
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidUserID)
	}
	if len(userID) > MaxUserIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, MaxUserIDLength)
	}
	return nil
}

// ValidateIdempotencyKey validates an optional caller-supplied key.
func ValidateIdempotencyKey(key *string) error {
	if key == nil {
		return nil
	}
	if strings.TrimSpace(*key) == "" {
		return fmt.Errorf("%w: cannot be blank", ErrInvalidIdempotencyKey)
	}
	if len(*key) > MaxIdempotencyKeyLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidIdempotencyKey, MaxIdempotencyKeyLength)
	}
	return nil
}

// ValidateReference validates a purchase reference id.
func ValidateReference(refID string) error {
	if strings.TrimSpace(refID) == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidReference)
	}
	if len(refID) > MaxReferenceLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidReference, MaxReferenceLength)
	}
	return nil
}

// ValidateCreditType checks that t may be used for a balance increase.
func ValidateCreditType(t TransactionType) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidTransactionType, t)
	}
	if !creditTypes[t] {
		return fmt.Errorf("%w: %s", ErrCreditTypeNotAllowed, t)
	}
	return nil
}

// ValidateDebitType checks that t may be used for a balance decrease.
func ValidateDebitType(t TransactionType) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidTransactionType, t)
	}
	if !debitTypes[t] {
		return fmt.Errorf("%w: %s", ErrDebitTypeNotAllowed, t)
	}
	return nil
}

// ValidateMetadata validates metadata size
func ValidateMetadata(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}

	// Estimate size (rough approximation)
	size := 0
	for k, v := range metadata {
		size += len(k)
		size += len(fmt.Sprintf("%v", v))
	}

	if size > MaxMetadataSize {
		return fmt.Errorf("%w: metadata size %d bytes exceeds limit of %d bytes", ErrMetadataTooLarge, size, MaxMetadataSize)
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
