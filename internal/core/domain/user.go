package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role controls what a caller may touch beyond their own resources.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleAdmin    Role = "ADMIN"
	RoleSystem   Role = "SYSTEM" // scheduled jobs, never issued in tokens
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleStaff || r == RoleAdmin
}

func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin || r == RoleSystem
}

// Lockout defaults.
const (
	DefaultMaxFailedLogins = 5
	DefaultLockoutDuration = 15 * time.Minute
)

// User is a bank customer or employee able to sign in.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	Email               string     `json:"email"`
	FullName            string     `json:"full_name"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	FailedLoginAttempts int        `json:"-"`
	LockoutEnd          *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsLockedOut reports whether sign-in is refused at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

// RecordFailedLogin counts a bad password. Reaching maxAttempts locks the user
// until now+lockout. A lockout that has already expired starts a fresh window.
func (u *User) RecordFailedLogin(maxAttempts int, lockout time.Duration, now time.Time) {
	if u.LockoutEnd != nil && !now.Before(*u.LockoutEnd) {
		u.FailedLoginAttempts = 0
		u.LockoutEnd = nil
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		end := now.Add(lockout)
		u.LockoutEnd = &end
	}
	u.UpdatedAt = now
}

func (u *User) RecordSuccessfulLogin(now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockoutEnd = nil
	u.LastLoginAt = &now
	u.UpdatedAt = now
}

// Unlock clears lockout state; used by staff.
func (u *User) Unlock(now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockoutEnd = nil
	u.UpdatedAt = now
}
