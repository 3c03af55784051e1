package config

import (
	"strings"
	"time"
)

// AuthConfig controls PIN login behaviour.
type AuthConfig struct {
	// MinFailureLatency is the minimum time a failed PIN verification takes
	// before responding, so that different failure causes look alike.
	MinFailureLatency time.Duration `env:"AUTH_MIN_FAILURE_LATENCY" envDefault:"300ms"`

	// RemoteCredentialEnabled issues a server-side credential alongside the
	// session record and revokes it on logout.
	RemoteCredentialEnabled bool `env:"AUTH_REMOTE_CREDENTIAL_ENABLED" envDefault:"true"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.MinFailureLatency < 0 {
		a.MinFailureLatency = 0
	}
	if a.MinFailureLatency > 5*time.Second {
		a.MinFailureLatency = 5 * time.Second
	}
}

// SessionConfig controls where session records live and how browser contexts are identified.
type SessionConfig struct {
	// KeyPrefix namespaces session slots in Redis.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"kiosk:session:"`

	// CredentialPrefix namespaces server-side credentials in Redis.
	CredentialPrefix string `env:"CREDENTIAL_PREFIX" envDefault:"kiosk:credential:"`

	// ContextCookie names the cookie that identifies a browser context.
	ContextCookie string `env:"CONTEXT_COOKIE" envDefault:"kiosk_ctx"`

	// ContextMaxAge is how long the browser-context cookie lives.
	ContextMaxAge time.Duration `env:"CONTEXT_MAX_AGE" envDefault:"8760h"`

	// ConsolePathPrefix marks requests coming from the admin console; those
	// contexts do not renew sessions on activity.
	ConsolePathPrefix string `env:"CONSOLE_PATH_PREFIX" envDefault:"/admin"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.KeyPrefix = strings.TrimSpace(s.KeyPrefix); s.KeyPrefix == "" {
		s.KeyPrefix = "kiosk:session:"
	}
	if s.CredentialPrefix = strings.TrimSpace(s.CredentialPrefix); s.CredentialPrefix == "" {
		s.CredentialPrefix = "kiosk:credential:"
	}
	if s.ContextCookie = strings.TrimSpace(s.ContextCookie); s.ContextCookie == "" {
		s.ContextCookie = "kiosk_ctx"
	}
	if s.ContextMaxAge < time.Hour {
		s.ContextMaxAge = time.Hour
	}
	if s.ConsolePathPrefix == "" {
		s.ConsolePathPrefix = "/admin"
	}
}
