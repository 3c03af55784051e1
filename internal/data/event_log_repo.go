package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

var (
	_ ports.AuditSink     = (*EventLogRepo)(nil)
	_ ports.LoginRecorder = (*EventLogRepo)(nil)
)

// EventLogRepo writes audit events to event_logs and logins to user_logs.
type EventLogRepo struct {
	DB *sql.DB
}

// NewEventLogRepo creates a new EventLogRepo.
func NewEventLogRepo(db *sql.DB) *EventLogRepo {
	return &EventLogRepo{DB: db}
}

// WriteEvent inserts one event. Actor and resource are stored flattened.
func (r *EventLogRepo) WriteEvent(ctx context.Context, ev model.EventLog) error {
	var eventCtx any
	if len(ev.Context) > 0 {
		eventCtx = string(ev.Context)
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO event_logs (
			event_type, level, action,
			actor_type, actor_id, actor_name, actor_department_id, actor_department_name,
			resource_type, resource_id,
			source, ip_address, user_agent, correlation_id, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16)
	`,
		ev.EventType, string(ev.Level), ev.Action,
		ev.Actor.Type, ev.Actor.ID, ev.Actor.Name, ev.Actor.DepartmentID, ev.Actor.DepartmentName,
		ev.Resource.Type, ev.Resource.ID,
		string(ev.Source), ev.IPAddress, ev.UserAgent, ev.CorrelationID, eventCtx, createdAt.UTC(),
	)
	return apperrors.MapDBError(err)
}

// RecordLogin inserts one user_logs row.
func (r *EventLogRepo) RecordLogin(ctx context.Context, rec model.LoginRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO user_logs (user_name, user_type, department_name, created_at)
		VALUES ($1, $2, $3, $4)
	`, rec.UserName, string(rec.UserType), rec.DepartmentName, createdAt.UTC())
	return apperrors.MapDBError(err)
}

// ListRecent returns the newest events, newest first.
func (r *EventLogRepo) ListRecent(ctx context.Context, limit int) (out []model.EventLog, err error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, event_type, level, action,
			actor_type, actor_id, actor_name, actor_department_id, actor_department_name,
			resource_type, resource_id,
			source, ip_address, user_agent, correlation_id, COALESCE(context::text, ''), created_at
		FROM event_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for rows.Next() {
		var (
			ev      model.EventLog
			level   string
			source  string
			context string
		)
		if err := rows.Scan(
			&ev.ID, &ev.EventType, &level, &ev.Action,
			&ev.Actor.Type, &ev.Actor.ID, &ev.Actor.Name, &ev.Actor.DepartmentID, &ev.Actor.DepartmentName,
			&ev.Resource.Type, &ev.Resource.ID,
			&source, &ev.IPAddress, &ev.UserAgent, &ev.CorrelationID, &context, &ev.CreatedAt,
		); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		ev.Level = model.EventLevel(level)
		ev.Source = model.EventSource(source)
		if context != "" {
			ev.Context = []byte(context)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}
