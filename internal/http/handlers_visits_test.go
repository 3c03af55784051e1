package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/service"
)

type fakeSweeps struct {
	AuthorizeFunc   func(header string) error
	SweepFunc       func(ctx context.Context, trigger string) (model.SweepResult, error)
	SystemExitsFunc func(ctx context.Context, opts model.SystemExitListOptions) ([]model.Visit, error)
}

func (f *fakeSweeps) Authorize(header string) error {
	if f.AuthorizeFunc == nil {
		return nil
	}
	return f.AuthorizeFunc(header)
}

func (f *fakeSweeps) Sweep(ctx context.Context, trigger string) (model.SweepResult, error) {
	return f.SweepFunc(ctx, trigger)
}

func (f *fakeSweeps) SystemExits(ctx context.Context, opts model.SystemExitListOptions) ([]model.Visit, error) {
	return f.SystemExitsFunc(ctx, opts)
}

func TestVisitHandlers_CronRejectsBadToken(t *testing.T) {
	sweeps := &fakeSweeps{
		AuthorizeFunc: func(header string) error {
			if header != "Bearer s3cret" {
				return apperrors.Unauthorized("bad token")
			}
			return nil
		},
		SweepFunc: func(context.Context, string) (model.SweepResult, error) {
			t.Fatal("sweep must not run")
			return model.SweepResult{}, nil
		},
	}
	h := &VisitHandlers{Sweeps: sweeps}

	req := httptest.NewRequest(http.MethodPost, "/api/cron/auto-exit", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.Cron(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody(t, rec)["error"])
}

func TestVisitHandlers_CronRunsSweep(t *testing.T) {
	ts := time.Date(2025, 6, 3, 4, 0, 0, 0, time.UTC)
	var gotTrigger string
	h := &VisitHandlers{Sweeps: &fakeSweeps{
		SweepFunc: func(_ context.Context, trigger string) (model.SweepResult, error) {
			gotTrigger = trigger
			return model.SweepResult{Success: true, Message: "Auto-exited 2 visits.", Count: 2, Timestamp: ts}, nil
		},
	}}

	rec := httptest.NewRecorder()
	h.Cron(rec, httptest.NewRequest(http.MethodGet, "/api/cron/auto-exit", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.TriggerCron, gotTrigger)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Auto-exited 2 visits.", body["message"])
	assert.InDelta(t, 2, body["count"], 0)
}

func TestVisitHandlers_CronFailure(t *testing.T) {
	ts := time.Date(2025, 6, 3, 4, 0, 0, 0, time.UTC)
	h := &VisitHandlers{Sweeps: &fakeSweeps{
		SweepFunc: func(context.Context, string) (model.SweepResult, error) {
			return model.SweepResult{Message: "connection refused", Timestamp: ts},
				apperrors.AutoExitUpdateFailure(errors.New("connection refused"))
		},
	}}

	rec := httptest.NewRecorder()
	h.Cron(rec, httptest.NewRequest(http.MethodPost, "/api/cron/auto-exit", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "connection refused", body["error"])
	assert.Equal(t, ts.Format(time.RFC3339), body["timestamp"])
}

func TestVisitHandlers_AutoExitToday(t *testing.T) {
	cutoff := time.Date(2025, 6, 2, 23, 59, 0, 0, time.UTC)
	runner := &fakeAutoExit{RunFunc: func(context.Context) (model.AutoExitOutcome, error) {
		return model.AutoExitOutcome{Ran: true, Closed: 4, Cutoff: cutoff}, nil
	}}
	h := &VisitHandlers{AutoExit: runner}

	rec := httptest.NewRecorder()
	h.AutoExitToday(rec, httptest.NewRequest(http.MethodPost, "/api/visits/auto-exit/today", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ran"])
	assert.InDelta(t, 4, body["closed"], 0)
	assert.Equal(t, cutoff.Format(time.RFC3339), body["cutoff"])
}

func TestVisitHandlers_AutoExitTodayFailure(t *testing.T) {
	h := &VisitHandlers{AutoExit: &fakeAutoExit{RunFunc: func(context.Context) (model.AutoExitOutcome, error) {
		return model.AutoExitOutcome{}, apperrors.AutoExitUpdateFailure(errors.New("db down"))
	}}}

	rec := httptest.NewRecorder()
	h.AutoExitToday(rec, httptest.NewRequest(http.MethodPost, "/api/visits/auto-exit/today", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "auto_exit_update_failure", decodeBody(t, rec)["error"])
}

func TestVisitHandlers_SystemExits(t *testing.T) {
	exit := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)
	var got model.SystemExitListOptions
	h := &VisitHandlers{Sweeps: &fakeSweeps{
		SystemExitsFunc: func(_ context.Context, opts model.SystemExitListOptions) ([]model.Visit, error) {
			got = opts
			return []model.Visit{{ID: 11, ExitTime: &exit, IsSystemExit: true, VisitorName: "Ann"}}, nil
		},
	}}

	rec := httptest.NewRecorder()
	h.SystemExits(rec, httptest.NewRequest(http.MethodGet,
		"/api/visits/system-exits?from=2025-06-01T00:00:00Z&to=2025-06-02T00:00:00Z&limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), got.From)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), got.To)
	assert.Equal(t, 5, got.Limit)

	body := decodeBody(t, rec)
	assert.InDelta(t, 1, body["count"], 0)
	visits := body["visits"].([]any)
	require.Len(t, visits, 1)
	assert.Equal(t, "Ann", visits[0].(map[string]any)["visitor_name"])
}

func TestVisitHandlers_SystemExitsEmpty(t *testing.T) {
	h := &VisitHandlers{Sweeps: &fakeSweeps{
		SystemExitsFunc: func(context.Context, model.SystemExitListOptions) ([]model.Visit, error) {
			return nil, nil
		},
	}}

	rec := httptest.NewRecorder()
	h.SystemExits(rec, httptest.NewRequest(http.MethodGet, "/api/visits/system-exits", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{}, body["visits"])
}

func TestVisitHandlers_SystemExitsBadQuery(t *testing.T) {
	h := &VisitHandlers{Sweeps: &fakeSweeps{
		SystemExitsFunc: func(context.Context, model.SystemExitListOptions) ([]model.Visit, error) {
			t.Fatal("must not query")
			return nil, nil
		},
	}}

	tests := []struct {
		name  string
		query string
		field string
	}{
		{name: "from", query: "from=yesterday", field: "from"},
		{name: "to", query: "to=2025-06-02", field: "to"},
		{name: "zero limit", query: "limit=0", field: "limit"},
		{name: "non numeric limit", query: "limit=ten", field: "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.SystemExits(rec, httptest.NewRequest(http.MethodGet, "/api/visits/system-exits?"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "validation", body["error"])
			assert.Equal(t, tt.field, body["field"])
		})
	}
}
