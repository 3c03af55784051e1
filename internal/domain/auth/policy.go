package auth

import "time"

const (
	// AdminSessionDuration is the lifetime of admin-like sessions.
	AdminSessionDuration = time.Hour
	// UserSessionDuration is the lifetime of kiosk (user) sessions.
	UserSessionDuration = time.Minute
	// IdleTimeout is the renewal applied on activity outside the admin console.
	IdleTimeout = time.Minute
	// WarningLead is how long before expiry admin-like sessions start a countdown.
	WarningLead = 2 * time.Minute
	// CountdownTick is the countdown resolution.
	CountdownTick = time.Second
)

// DurationFor returns the session lifetime for role.
func DurationFor(role Role) time.Duration {
	if role.IsAdminLike() {
		return AdminSessionDuration
	}
	return UserSessionDuration
}

// WarnsBeforeExpiry reports whether sessions of role get a warning countdown.
func WarnsBeforeExpiry(role Role) bool {
	return role.IsAdminLike()
}

// ActivitySignal is a user-interaction event that renews idle sessions.
type ActivitySignal string

const (
	SignalPointerMove ActivitySignal = "pointermove"
	SignalPointerDown ActivitySignal = "pointerdown"
	SignalKeyDown     ActivitySignal = "keydown"
	SignalTouchStart  ActivitySignal = "touchstart"
	SignalScroll      ActivitySignal = "scroll"
)

// IsRenewing reports whether s is one of the signals that renew an idle session.
func (s ActivitySignal) IsRenewing() bool {
	switch s {
	case SignalPointerMove, SignalPointerDown, SignalKeyDown, SignalTouchStart, SignalScroll:
		return true
	default:
		return false
	}
}
