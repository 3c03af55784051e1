package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmn/visitor-kiosk/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#kiosk",
		Username:   "bot",
		Facility:   "HQ <north>",
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.FailurePayload{
		Task:       "auto_exit_sweep",
		Trigger:    "schedule",
		Error:      "upsert visits: boom",
		ErrorClass: "pgconn_pgerror",
		Metadata:   map[string]string{"candidates": "12"},
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#kiosk", msg["channel"])

	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{
		"Kiosk task failure", "auto_exit_sweep", "schedule", "upsert visits: boom",
		"pgconn_pgerror", "candidates: 12", "HQ &lt;north&gt;", "Severity: critical",
	} {
		assert.Contains(t, text, want)
	}
}

func TestFormatMessageDefaultsUsername(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	msg := client.formatMessage(notify.FailurePayload{})
	assert.Equal(t, "visitor-kiosk", msg["username"])
	assert.NotContains(t, msg, "channel")
}

func TestSendFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("try again"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1, Timeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, client.SendFailure(context.Background(), notify.FailurePayload{Task: "auto_exit_sweep"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendFailureReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = client.SendFailure(context.Background(), notify.FailurePayload{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid_token"))
}
