package auth

// Package auth contains domain-level types for PIN login and kiosk sessions.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleUser            Role = "user"
	RoleDepartmentAdmin Role = "department_admin"
	RoleAdmin           Role = "admin"
)

// ParseRole normalises a stored role string. Unknown values return false.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleDepartmentAdmin, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDepartmentAdmin, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdminLike reports whether r receives long sessions and expiry warnings.
func (r Role) IsAdminLike() bool {
	return r == RoleAdmin || r == RoleDepartmentAdmin
}

// Identity is the principal produced by a successful PIN verification.
// It is never mutated; a fresh login replaces it wholesale.
type Identity struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Role       Role    `json:"role"`
	Department *string `json:"department"`
}

// DepartmentName returns the department or an empty string.
func (i Identity) DepartmentName() string {
	if i.Department == nil {
		return ""
	}
	return *i.Department
}

// Session is the record persisted for one browser context.
type Session struct {
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the session is usable at now. A session is only
// valid while ExpiresAt is strictly in the future.
func (s Session) ValidAt(now time.Time) bool {
	return s.Identity.ID != "" && s.Identity.Role.Valid() && now.Before(s.ExpiresAt)
}

// Remaining returns the time left until expiry, never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
