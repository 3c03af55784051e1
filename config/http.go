package config

import "strings"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// CSRFEnabled turns on double-submit CSRF checks for cookie-authenticated writes.
	CSRFEnabled bool `env:"HTTP_CSRF_ENABLED" envDefault:"true"`

	// SSEHeartbeatSeconds is the keep-alive interval of the session event stream.
	SSEHeartbeatSeconds int `env:"HTTP_SSE_HEARTBEAT_SECONDS" envDefault:"15"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr = strings.TrimSpace(h.Addr); h.Addr == "" {
		h.Addr = ":8080"
	}
	h.CookieDomain = strings.TrimSpace(h.CookieDomain)
	if h.SSEHeartbeatSeconds < 1 {
		h.SSEHeartbeatSeconds = 1
	}
	if h.SSEHeartbeatSeconds > 120 {
		h.SSEHeartbeatSeconds = 120
	}
}
