// Package facilitytime converts between absolute instants and wall-clock
// time in the facility's named time zone.
package facilitytime

import (
	"fmt"
	"time"

	// Bundle the IANA database so containers without /usr/share/zoneinfo still resolve zones.
	_ "time/tzdata"
)

// Zone is a named IANA time zone.
type Zone struct {
	loc *time.Location
}

// Wall is a wall-clock reading in a zone.
type Wall struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// Load resolves an IANA zone name such as "Europe/Warsaw".
func Load(name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// MustLoad is like Load but panics on error. Intended for tests and constants.
func MustLoad(name string) *Zone {
	z, err := Load(name)
	if err != nil {
		panic(err)
	}
	return z
}

// UTC returns the UTC zone.
func UTC() *Zone { return &Zone{loc: time.UTC} }

// Name returns the zone name.
func (z *Zone) Name() string { return z.loc.String() }

// Location exposes the underlying location.
func (z *Zone) Location() *time.Location { return z.loc }

// WallClock returns the wall-clock parts of t in the zone.
func (z *Zone) WallClock(t time.Time) Wall {
	lt := t.In(z.loc)
	return Wall{
		Year:   lt.Year(),
		Month:  lt.Month(),
		Day:    lt.Day(),
		Hour:   lt.Hour(),
		Minute: lt.Minute(),
		Second: lt.Second(),
	}
}

// Instant returns the absolute instant of a local wall-clock time. Times
// inside a DST gap are normalised forward; ambiguous times resolve to the
// first occurrence.
func (z *Zone) Instant(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, z.loc)
}

// DayBounds returns local midnight of the day containing t and the next local
// midnight. The span is 23 or 25 hours on DST transition days.
func (z *Zone) DayBounds(t time.Time) (start, end time.Time) {
	w := z.WallClock(t)
	start = z.Instant(w.Year, w.Month, w.Day, 0, 0, 0)
	end = z.Instant(w.Year, w.Month, w.Day+1, 0, 0, 0)
	return start, end
}

// CutoffOn returns hour:00 local time on the day containing t.
func (z *Zone) CutoffOn(t time.Time, hour int) time.Time {
	w := z.WallClock(t)
	return z.Instant(w.Year, w.Month, w.Day, hour, 0, 0)
}

// EndOfDay returns 23:59:59 local time on the day containing t.
func (z *Zone) EndOfDay(t time.Time) time.Time {
	w := z.WallClock(t)
	return z.Instant(w.Year, w.Month, w.Day, 23, 59, 59)
}

// AtOrPastCutoff reports whether the local hour of t is hour or later.
func (z *Zone) AtOrPastCutoff(t time.Time, hour int) bool {
	return z.WallClock(t).Hour >= hour
}
