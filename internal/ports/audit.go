package ports

import (
	"context"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
)

// AuditSink accepts structured audit events.
type AuditSink interface {
	WriteEvent(ctx context.Context, ev model.EventLog) error
}

// LoginRecorder stores one row per successful PIN login.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, rec model.LoginRecord) error
}

// AuditEmitter is the fire-and-forget front used by services. Emit never blocks or fails.
type AuditEmitter interface {
	Emit(ev model.EventLog)
	EmitLogin(rec model.LoginRecord)
}
