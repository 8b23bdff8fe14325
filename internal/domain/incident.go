package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AllowedDrift is the tolerated |balance - sum(transactions)| before a
// wallet is considered tampered with.
var AllowedDrift = decimal.RequireFromString("0.01")

// ForensicRecentTransactions is how many ledger rows an incident carries.
const ForensicRecentTransactions = 10

const ActionQuarantined = "quarantined"

// ForensicIncident describes a detected ledger drift.
type ForensicIncident struct {
	ID                 string
	UserID             string
	WalletID           string
	Drift              decimal.Decimal
	Balance            decimal.Decimal
	ExpectedSum        decimal.Decimal
	ActionTaken        string
	DetectedAt         time.Time
	RecentTransactions []*Transaction
}

// Drift returns |balance - sum|.
func Drift(balance, sum decimal.Decimal) decimal.Decimal {
	return balance.Sub(sum).Abs()
}

// ExceedsAllowedDrift reports whether drift breaks the ledger invariant.
func ExceedsAllowedDrift(drift decimal.Decimal) bool {
	return drift.GreaterThan(AllowedDrift)
}

// AuditPayload flattens the incident for the audit trail.
func (i *ForensicIncident) AuditPayload() JSON {
	txs := make([]map[string]any, 0, len(i.RecentTransactions))
	for _, tx := range i.RecentTransactions {
		txs = append(txs, map[string]any{
			"id":          tx.ID,
			"amount":      tx.Amount.String(),
			"type":        string(tx.Type),
			"description": tx.Description,
			"created_at":  tx.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return JSON{
		"incident_id":  i.ID,
		"user_id":      i.UserID,
		"wallet_id":    i.WalletID,
		"drift":        i.Drift.String(),
		"balance":      i.Balance.String(),
		"expected_sum": i.ExpectedSum.String(),
		"action_taken": i.ActionTaken,
		"detected_at":  i.DetectedAt.UTC().Format(time.RFC3339),
		"transactions": txs,
	}
}

// Report renders a plain-text summary for human channels.
func (i *ForensicIncident) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "LEDGER DRIFT DETECTED\n")
	fmt.Fprintf(&b, "user: %s\n", i.UserID)
	fmt.Fprintf(&b, "wallet: %s\n", i.WalletID)
	fmt.Fprintf(&b, "drift: %s\n", i.Drift.StringFixed(2))
	fmt.Fprintf(&b, "actual balance: %s\n", i.Balance.StringFixed(2))
	fmt.Fprintf(&b, "expected balance: %s\n", i.ExpectedSum.StringFixed(2))
	fmt.Fprintf(&b, "action: %s\n", i.ActionTaken)
	fmt.Fprintf(&b, "detected at: %s\n", i.DetectedAt.UTC().Format(time.RFC3339))

	if len(i.RecentTransactions) > 0 {
		fmt.Fprintf(&b, "last %d transactions:\n", len(i.RecentTransactions))
		for _, tx := range i.RecentTransactions {
			fmt.Fprintf(&b, "  %s %s %s %s\n",
				tx.CreatedAt.UTC().Format(time.RFC3339), tx.Type, tx.Amount.StringFixed(2), tx.Description)
		}
	}

	return b.String()
}
