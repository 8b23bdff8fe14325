package domain

import "time"

// UserStatus is the account standing tracked by the ledger core.
type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusBanned UserStatus = "banned"
)

// User holds only the fields the ledger core may change. Everything else
// about the user belongs to the outer application.
type User struct {
	ID        string
	Status    UserStatus
	BanReason string
	BannedAt  *time.Time
	UpdatedAt time.Time
}

// IsBanned reports whether the user has been quarantined.
func (u *User) IsBanned() bool {
	return u.Status == UserStatusBanned
}

// SystemActorSentinel is the audit actor for automated quarantine.
const SystemActorSentinel = "system:sentinel"
