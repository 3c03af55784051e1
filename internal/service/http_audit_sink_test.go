package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
)

func TestNewHTTPAuditSink_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts HTTPAuditSinkOptions
	}{
		{"empty url", HTTPAuditSinkOptions{}},
		{"bad scheme", HTTPAuditSinkOptions{URL: "ftp://collector"}},
		{"missing host", HTTPAuditSinkOptions{URL: "https://"}},
		{"bad expression", HTTPAuditSinkOptions{URL: "https://collector", Body: "{a: "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPAuditSink(tt.opts)
			require.Error(t, err)
		})
	}
}

func TestHTTPAuditSink_PostsShapedBody(t *testing.T) {
	var (
		gotBody map[string]any
		gotAuth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink, err := NewHTTPAuditSink(HTTPAuditSinkOptions{
		URL:   srv.URL,
		Body:  "{type: event_type, who: actor.name, level: level}",
		Token: "tok",
	})
	require.NoError(t, err)

	err = sink.WriteEvent(context.Background(), model.EventLog{
		EventType: "auth.login",
		Level:     model.EventLevelAudit,
		Actor:     model.EventActor{Name: model.StrPtr("Ola")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, map[string]any{"type": "auth.login", "who": "Ola", "level": "audit"}, gotBody)
}

func TestHTTPAuditSink_RawBodyAndStatusError(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink, err := NewHTTPAuditSink(HTTPAuditSinkOptions{URL: srv.URL})
	require.NoError(t, err)

	err = sink.WriteEvent(context.Background(), model.EventLog{EventType: "session.expired", CorrelationID: "c-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, "session.expired", gotBody["event_type"])
	assert.Equal(t, "c-1", gotBody["correlation_id"])
}
