//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// EventLevel is the severity of an audit event.
type EventLevel string

const (
	EventLevelAudit EventLevel = "audit"
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
	EventLevelDebug EventLevel = "debug"
)

// Valid reports whether the level is supported.
func (l EventLevel) Valid() bool {
	switch l {
	case EventLevelAudit, EventLevelInfo, EventLevelWarn, EventLevelError, EventLevelDebug:
		return true
	default:
		return false
	}
}

// EventSource identifies who produced an audit event.
type EventSource string

const (
	EventSourceClient  EventSource = "client"
	EventSourceServer  EventSource = "server"
	EventSourceTrigger EventSource = "trigger"
)

// Valid reports whether the source is supported.
func (s EventSource) Valid() bool {
	switch s {
	case EventSourceClient, EventSourceServer, EventSourceTrigger:
		return true
	default:
		return false
	}
}

// EventActor describes who performed the audited action.
type EventActor struct {
	Type           *string `json:"type,omitempty"`
	ID             *string `json:"id,omitempty"`
	Name           *string `json:"name,omitempty"`
	DepartmentID   *int64  `json:"department_id,omitempty"`
	DepartmentName *string `json:"department_name,omitempty"`
}

// EventResource describes what the audited action touched.
type EventResource struct {
	Type *string `json:"type,omitempty"`
	ID   *string `json:"id,omitempty"`
}

// EventLog is one structured audit record stored in event_logs.
type EventLog struct {
	ID            int64           `json:"id,omitempty"            db:"id"`
	EventType     string          `json:"event_type"              db:"event_type"`
	Level         EventLevel      `json:"level"                   db:"level"`
	Action        *string         `json:"action,omitempty"        db:"action"`
	Actor         EventActor      `json:"actor"`
	Resource      EventResource   `json:"resource"`
	Source        EventSource     `json:"source"                  db:"source"`
	IPAddress     *string         `json:"ip_address,omitempty"    db:"ip_address"`
	UserAgent     *string         `json:"user_agent,omitempty"    db:"user_agent"`
	CorrelationID string          `json:"correlation_id"          db:"correlation_id"`
	Context       json.RawMessage `json:"context,omitempty"       db:"context"`
	CreatedAt     time.Time       `json:"created_at,omitempty"    db:"created_at"`
}

// Normalize applies defaults: unknown levels become info, unknown sources
// become client, and surrounding whitespace is trimmed from the event type.
// Correlation ids are assigned by the caller.
func (e *EventLog) Normalize() {
	e.EventType = strings.TrimSpace(e.EventType)
	e.Level = EventLevel(strings.ToLower(strings.TrimSpace(string(e.Level))))
	if !e.Level.Valid() {
		e.Level = EventLevelInfo
	}
	e.Source = EventSource(strings.ToLower(strings.TrimSpace(string(e.Source))))
	if !e.Source.Valid() {
		e.Source = EventSourceClient
	}
	if len(e.Context) > 0 && !isJSONObject(e.Context) {
		e.Context = nil
	}
}

func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]any
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

// LoginUserType distinguishes employee logins from department PIN logins.
type LoginUserType string

const (
	LoginUserEmployee   LoginUserType = "employee"
	LoginUserDepartment LoginUserType = "department"
)

// LoginRecord is one row of the user_logs table written on every successful PIN login.
type LoginRecord struct {
	UserName       string        `json:"user_name"                 db:"user_name"`
	UserType       LoginUserType `json:"user_type"                 db:"user_type"`
	DepartmentName *string       `json:"department_name,omitempty" db:"department_name"`
	CreatedAt      time.Time     `json:"created_at"                db:"created_at"`
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
