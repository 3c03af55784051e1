package config

import "strings"

const (
	defaultFacilityTimezone = "Europe/Warsaw"
	defaultCutoffHour       = 14
)

// FacilityConfig describes where the kiosk runs and when visits are closed automatically.
type FacilityConfig struct {
	// Timezone is the IANA zone of the facility. Day boundaries and the
	// client-side cutoff are computed in this zone.
	Timezone string `env:"FACILITY_TIMEZONE" envDefault:"Europe/Warsaw"`

	// CutoffHour is the local hour (0-23) at or after which open visits from
	// today are closed by the system.
	CutoffHour int `env:"AUTO_EXIT_CUTOFF_HOUR" envDefault:"14"`
}

// Sanitize applies guardrails to facility configuration values.
func (f *FacilityConfig) Sanitize() {
	if f.Timezone = strings.TrimSpace(f.Timezone); f.Timezone == "" {
		f.Timezone = defaultFacilityTimezone
	}
	if f.CutoffHour < 0 || f.CutoffHour > 23 {
		f.CutoffHour = defaultCutoffHour
	}
}
