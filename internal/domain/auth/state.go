package auth

// State is the lifecycle state of a session engine.
type State string

const (
	StateNoSession      State = "no_session"
	StateActive         State = "active"
	StateWarningPending State = "warning_pending"
	StateExpired        State = "expired"
)

// HasSession reports whether the state carries a live identity.
func (s State) HasSession() bool {
	return s == StateActive || s == StateWarningPending
}
