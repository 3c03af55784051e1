package config

import (
	"strings"
	"time"
)

// AuditConfig controls delivery of audit events (logins, auto-exits, client events).
type AuditConfig struct {
	// QueueSize bounds the number of pending audit events. Events are dropped when full.
	QueueSize int `env:"QUEUE_SIZE" envDefault:"256"`

	// Workers is the number of goroutines delivering audit events.
	Workers int `env:"WORKERS" envDefault:"2"`

	// Timeout bounds each delivery attempt.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`

	// ForwardURL optionally forwards every event to an external collector.
	ForwardURL string `env:"FORWARD_URL"`

	// ForwardBody is a JMESPath expression applied to the event to build the
	// forwarded JSON body. Empty sends the event as-is.
	ForwardBody string `env:"FORWARD_BODY"`

	// ForwardToken is sent as a bearer token to the collector when set.
	ForwardToken string `env:"FORWARD_TOKEN"`
}

// Sanitize applies guardrails to audit configuration values.
func (a *AuditConfig) Sanitize() {
	if a.QueueSize < 1 {
		a.QueueSize = 1
	}
	if a.QueueSize > 10000 {
		a.QueueSize = 10000
	}
	if a.Workers < 1 {
		a.Workers = 1
	}
	if a.Workers > 16 {
		a.Workers = 16
	}
	if a.Timeout <= 0 {
		a.Timeout = 5 * time.Second
	}
	a.ForwardURL = strings.TrimSpace(a.ForwardURL)
	a.ForwardBody = strings.TrimSpace(a.ForwardBody)
	a.ForwardToken = strings.TrimSpace(a.ForwardToken)
}

// ForwardEnabled reports whether events are forwarded to an external collector.
func (a *AuditConfig) ForwardEnabled() bool {
	return a.ForwardURL != ""
}
