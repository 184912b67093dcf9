package models

import (
	"time"
)

// User is the identity record held by the credential store. Token operations
// never mutate it; only the login path touches the failure counters.
type User struct {
	ID             string
	Email          string // unique, stored lowercase
	PasswordHash   string
	FailedAttempts int
	LockedUntil    *time.Time // temporary lockout expiration, nil when unlocked
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether the record carries an unexpired lockout.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
