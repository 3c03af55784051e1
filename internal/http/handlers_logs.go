package httpx

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

const maxEventTypeLen = 100

// LogHandlers ingests audit events sent by kiosk clients.
type LogHandlers struct {
	Audit ports.AuditEmitter
}

type logRequest struct {
	EventType     string              `json:"event_type"`
	Level         model.EventLevel    `json:"level"`
	Action        *string             `json:"action"`
	Actor         model.EventActor    `json:"actor"`
	Resource      model.EventResource `json:"resource"`
	Source        model.EventSource   `json:"source"`
	CorrelationID string              `json:"correlation_id"`
	Context       json.RawMessage     `json:"context"`
}

// Ingest accepts one event and queues it for delivery. Unknown levels and
// sources are normalized rather than rejected.
// POST /api/logs.
func (h *LogHandlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.EventType = strings.TrimSpace(req.EventType)
	if req.EventType == "" || len(req.EventType) > maxEventTypeLen {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_event_type",
			Err:     errors.New("event_type is required and must be at most 100 characters"),
		})
		return
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = GetCorrelationID(r.Context())
	}

	ev := model.EventLog{
		EventType:     req.EventType,
		Level:         req.Level,
		Action:        req.Action,
		Actor:         req.Actor,
		Resource:      req.Resource,
		Source:        req.Source,
		IPAddress:     model.StrPtr(clientIP(r)),
		UserAgent:     model.StrPtr(r.UserAgent()),
		CorrelationID: correlationID,
		Context:       req.Context,
	}
	ev.Normalize()
	if h.Audit != nil {
		h.Audit.Emit(ev)
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"success": true, "correlation_id": ev.CorrelationID})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-Ip, then the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
