package model

import (
	"fmt"
	"time"
)

// User is a local account. Reports refer to users through their principal id.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Name         string     `json:"name,omitempty"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RoleStudent = "student"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidRole reports whether role is a known role.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff || role == RoleStudent
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:   3,
		RoleStaff:   2,
		RoleStudent: 1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	return nil
}

// Principal is an authenticated identity supplied by an auth gateway.
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// IsZero reports whether p carries no identity.
func (p Principal) IsZero() bool { return p.ID == "" }
