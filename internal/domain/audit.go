package domain

import (
	"encoding/json"
	"time"
)

// AuditLog represents an immutable audit trail entry.
type AuditLog struct {
	ID           string
	UserID       string // Actor: a real user or a system actor
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	BeforeState  JSON
	AfterState   JSON
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionWalletQuarantine  AuditAction = "wallet.quarantine"
	AuditActionReservationExpire AuditAction = "reservation.expire"
	AuditActionReservedClamp     AuditAction = "wallet.reserved_clamp"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
	AuditStatusError   AuditStatus = "error"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Limit        int
	Offset       int
}
