//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "time"

// Visit is a single visitor admission. Only EntryTime, ExitTime and
// IsSystemExit matter to the auto-exit logic; every other column is carried
// through untouched when a visit is closed by the system.
type Visit struct {
	ID             int64      `json:"id"                         db:"id"`
	EntryTime      time.Time  `json:"entry_time"                 db:"entry_time"`
	ExitTime       *time.Time `json:"exit_time"                  db:"exit_time"`
	IsSystemExit   bool       `json:"is_system_exit"             db:"is_system_exit"`
	EmployeeID     int64      `json:"employee_id"                db:"employee_id"`
	VisitorName    string     `json:"visitor_name"               db:"visitor_name"`
	PurposeID      *int64     `json:"purpose_id,omitempty"       db:"purpose_id"`
	BadgeID        *int64     `json:"badge_id,omitempty"         db:"badge_id"`
	Notes          *string    `json:"notes,omitempty"            db:"notes"`
	Signature      *string    `json:"signature,omitempty"        db:"signature"`
	ExitEmployeeID *int64     `json:"exit_employee_id,omitempty" db:"exit_employee_id"`
	CreatedAt      time.Time  `json:"created_at"                 db:"created_at"`
}

// IsOpen reports whether the visitor has not been checked out yet.
func (v Visit) IsOpen() bool { return v.ExitTime == nil }

// CloseBySystem returns a copy of v closed at exitAt and flagged as a system exit.
func (v Visit) CloseBySystem(exitAt time.Time) Visit {
	closed := v
	t := exitAt
	closed.ExitTime = &t
	closed.IsSystemExit = true
	return closed
}

// VisitWindow is a half-open [Start, End) range over entry_time.
type VisitWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w VisitWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// CloseOpenVisitsRequest closes every open visit that entered inside Window.
type CloseOpenVisitsRequest struct {
	Window   VisitWindow
	ExitTime time.Time
}

// SystemExitListOptions filters the system-closed visits report.
type SystemExitListOptions struct {
	From  time.Time
	To    time.Time
	Limit int
}

// AutoExitOutcome describes a single client-side trigger run.
type AutoExitOutcome struct {
	Ran     bool        `json:"ran"`
	Closed  int64       `json:"closed"`
	Cutoff  time.Time   `json:"cutoff"`
	Window  VisitWindow `json:"-"`
	Skipped string      `json:"skipped,omitempty"`
}

// SweepResult is reported by the server-side auto-exit sweep.
type SweepResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
