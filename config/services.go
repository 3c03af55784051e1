package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeAutoExit runs the periodic sweep that closes stale open visits.
	ServiceModeAutoExit ServiceMode = "auto-exit"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeAutoExit,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeAutoExit:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, auto-exit)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// AutoExitConfig contains configuration for the server-side auto-exit sweep.
type AutoExitConfig struct {
	// Interval is how often the background sweep runs when the auto-exit service is enabled.
	Interval time.Duration `env:"AUTO_EXIT_INTERVAL" envDefault:"15m"`

	// Timeout bounds a single sweep run.
	Timeout time.Duration `env:"AUTO_EXIT_TIMEOUT" envDefault:"2m"`

	// CronSecret gates the on-demand sweep endpoint. Empty disables the check.
	CronSecret string `env:"CRON_SECRET"`

	// SweepTimezone is the zone in which a visit's entry date and the sweep
	// cutoff hour are evaluated.
	SweepTimezone string `env:"AUTO_EXIT_SWEEP_TIMEZONE" envDefault:"UTC"`

	// BatchSize caps the number of rows sent per upsert batch.
	BatchSize int `env:"AUTO_EXIT_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to auto-exit configuration values.
func (a *AutoExitConfig) Sanitize() {
	// Enforce a minimum interval to prevent excessive database load
	if a.Interval < 1*time.Minute {
		a.Interval = 1 * time.Minute
	}
	if a.Timeout <= 0 {
		a.Timeout = 2 * time.Minute
	}
	a.CronSecret = strings.TrimSpace(a.CronSecret)
	if a.SweepTimezone = strings.TrimSpace(a.SweepTimezone); a.SweepTimezone == "" {
		a.SweepTimezone = "UTC"
	}
	if a.BatchSize < 1 {
		a.BatchSize = 1
	}
	if a.BatchSize > 10000 {
		a.BatchSize = 10000
	}
}

// CronSecretEnabled reports whether the on-demand sweep requires a bearer secret.
func (a *AutoExitConfig) CronSecretEnabled() bool {
	return a.CronSecret != ""
}
